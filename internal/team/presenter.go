package team

// Presenter is notified of session and teammate lifecycle so a terminal
// front end can mirror it. Errors are logged and never fail an operation.
type Presenter interface {
	StartSession(team string) error
	StopSession(team string) error
	OpenWindow(team, teammate string) error
	CloseWindow(team, teammate string) error
}

// NopPresenter ignores every notification.
type NopPresenter struct{}

func (NopPresenter) StartSession(string) error        { return nil }
func (NopPresenter) StopSession(string) error         { return nil }
func (NopPresenter) OpenWindow(string, string) error  { return nil }
func (NopPresenter) CloseWindow(string, string) error { return nil }
