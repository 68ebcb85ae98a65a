package models

// Student is the identity view of a student owned by the membership module.
type Student struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Active   bool   `db:"active" json:"active"`
}

// Coach is the identity view of a coach owned by the staff module.
type Coach struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Active   bool   `db:"active" json:"active"`
}

// Dojaang is the identity view of a branch location.
type Dojaang struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
