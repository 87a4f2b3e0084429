package orders

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
)

// Customer is the guest checkout form.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

// ValidationError carries per-field messages for display next to the form.
// It never reaches the API.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "orders: invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Normalized returns c with surrounding whitespace removed.
func (c Customer) Normalized() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
		Notes:   strings.TrimSpace(c.Notes),
	}
}

// Validate checks the required fields. Email is optional but must parse
// when present. The returned error is a *ValidationError or nil.
func (c Customer) Validate() error {
	c = c.Normalized()
	var verr ValidationError
	if c.Name == "" {
		verr.add("name", "El nombre es requerido")
	}
	if c.Phone == "" {
		verr.add("phone", "El teléfono es requerido")
	}
	if c.Address == "" {
		verr.add("address", "La dirección es requerida")
	}
	if c.Email != "" {
		if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
			verr.add("email", "Correo inválido")
		}
	}
	return verr.orNil()
}
