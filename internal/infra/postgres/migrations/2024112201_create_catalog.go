package migrations

func init() {
	Migrations.MustRegister(script("2024112201_create_catalog.up.sql"), script("2024112201_create_catalog.down.sql"))
}
