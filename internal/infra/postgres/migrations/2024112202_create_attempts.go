package migrations

func init() {
	Migrations.MustRegister(script("2024112202_create_attempts.up.sql"), script("2024112202_create_attempts.down.sql"))
}
