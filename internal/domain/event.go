package domain

// Event is a typed message pushed to a client's notification channel
type Event struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	Marketplace string `json:"marketplace,omitempty"`
	Data        any    `json:"data,omitempty"`
}

// StatusEvent builds a status event
func StatusEvent(message string) Event {
	return Event{Type: EventStatus, Message: message}
}

// ErrorEvent builds an error event
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// DataEvent builds a data event carrying a product or a list of products
func DataEvent(marketplace string, data any) Event {
	return Event{Type: EventData, Marketplace: marketplace, Data: data}
}
