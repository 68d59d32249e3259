// internal/models/dataset.go
package models

import "strings"

// Dataset is the single JSON document holding every user and application.
type Dataset struct {
	Meta         map[string]interface{} `json:"meta,omitempty"`
	Users        []User                 `json:"users"`
	Applications []Application          `json:"applications"`
}

func NewDataset() *Dataset {
	return &Dataset{
		Users:        []User{},
		Applications: []Application{},
	}
}

// Normalize replaces missing arrays with empty ones.
func (d *Dataset) Normalize() *Dataset {
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.Applications == nil {
		d.Applications = []Application{}
	}
	return d
}

// Clone returns a deep copy so a mutation can be retried against fresh data.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Users:        make([]User, len(d.Users)),
		Applications: make([]Application, len(d.Applications)),
	}
	if d.Meta != nil {
		out.Meta = make(map[string]interface{}, len(d.Meta))
		for k, v := range d.Meta {
			out.Meta[k] = v
		}
	}
	copy(out.Users, d.Users)
	for i, app := range d.Applications {
		if app.AdminHistory != nil {
			app.AdminHistory = append([]AdminHistoryEntry(nil), app.AdminHistory...)
		}
		out.Applications[i] = app
	}
	return out
}

// Redacted returns a copy without any password material.
func (d *Dataset) Redacted() *Dataset {
	out := d.Clone()
	for i := range out.Users {
		out.Users[i] = out.Users[i].Redacted()
	}
	return out
}

func (d *Dataset) FindApplication(id string) (*Application, bool) {
	for i := range d.Applications {
		if d.Applications[i].ID == id {
			return &d.Applications[i], true
		}
	}
	return nil, false
}

// FindUserByEmail matches case-insensitively.
func (d *Dataset) FindUserByEmail(email string) (*User, bool) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false
	}
	for i := range d.Users {
		if NormalizeEmail(d.Users[i].Email) == email {
			return &d.Users[i], true
		}
	}
	return nil, false
}

func (d *Dataset) FindUserByID(id string) (*User, bool) {
	if id == "" {
		return nil, false
	}
	for i := range d.Users {
		if d.Users[i].ID == id {
			return &d.Users[i], true
		}
	}
	return nil, false
}

// ApplicationsFor lists the applications owned by a user.
func (d *Dataset) ApplicationsFor(u *User) []Application {
	out := []Application{}
	for _, app := range d.Applications {
		if app.OwnedBy(u) {
			out = append(out, app)
		}
	}
	return out
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
