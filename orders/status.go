package orders

import "slices"

// Status is an order's fulfillment state.
type Status string

const (
	StatusReceived       Status = "RECEIVED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPreparing      Status = "PREPARING"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// Flow is the forward progression of an order. CANCELLED sits outside it.
var Flow = []Status{
	StatusReceived,
	StatusConfirmed,
	StatusPreparing,
	StatusOutForDelivery,
	StatusDelivered,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next returns the status after s in Flow. It reports false for terminal or
// unknown statuses.
func Next(s Status) (Status, bool) {
	if s.Terminal() {
		return "", false
	}
	i := slices.Index(Flow, s)
	if i < 0 || i+1 >= len(Flow) {
		return "", false
	}
	return Flow[i+1], true
}

// CanCancel reports whether an order in status s may still be cancelled.
func CanCancel(s Status) bool { return !s.Terminal() }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusCancelled || slices.Contains(Flow, s)
}

// Meta is the display metadata of a status.
type Meta struct {
	Label    string
	Color    string
	Progress int // percent
}

var statusMeta = map[Status]Meta{
	StatusReceived:       {Label: "Recibido", Color: "blue", Progress: 10},
	StatusConfirmed:      {Label: "Confirmado", Color: "purple", Progress: 35},
	StatusPreparing:      {Label: "En preparación", Color: "orange", Progress: 60},
	StatusOutForDelivery: {Label: "En ruta", Color: "yellow", Progress: 80},
	StatusDelivered:      {Label: "Entregado", Color: "green", Progress: 100},
	StatusCancelled:      {Label: "Cancelado", Color: "red", Progress: 100},
}

// StatusMeta returns display metadata. Unknown statuses are labelled with
// their raw value.
func StatusMeta(s Status) Meta {
	if m, ok := statusMeta[s]; ok {
		return m
	}
	return Meta{Label: string(s), Color: "black", Progress: 15}
}
