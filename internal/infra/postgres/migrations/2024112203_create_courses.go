package migrations

func init() {
	Migrations.MustRegister(script("2024112203_create_courses.up.sql"), script("2024112203_create_courses.down.sql"))
}
