package models

type User struct {
	Id             int64  `db:"id"`
	Username       string `db:"username"`
	Email          string `db:"email"`
	EmailConfirmed int    `db:"email_confirmed"`
	CertCN         string `db:"cert_cn"`
}

var UsersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT,
	email TEXT,
	email_confirmed INTEGER DEFAULT 0,
	cert_cn TEXT DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users (email);`
