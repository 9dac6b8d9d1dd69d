package team

import "sync"

type recordingPresenter struct {
	mu    sync.Mutex
	calls []string
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{}
}

func (p *recordingPresenter) record(call string) error {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
	return nil
}

func (p *recordingPresenter) StartSession(team string) error { return p.record("start " + team) }
func (p *recordingPresenter) StopSession(team string) error  { return p.record("stop " + team) }
func (p *recordingPresenter) OpenWindow(team, teammate string) error {
	return p.record("open " + team + "/" + teammate)
}
func (p *recordingPresenter) CloseWindow(team, teammate string) error {
	return p.record("close " + team + "/" + teammate)
}
