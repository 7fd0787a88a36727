package pilotdto

// CommandError is a rejected command. Code is stable; Message is for display.
type CommandError struct {
	Code    string
	Message string
}

func (e CommandError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "command rejected"
}
