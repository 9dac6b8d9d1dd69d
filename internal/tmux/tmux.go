// Package tmux mirrors teams into tmux: one session per team, one window per
// running teammate.
//
// Every team gets its own tmux server on a socket named "teamwork-{team}", so
// stopping one team's session can never disturb another team or the user's
// own tmux sessions.
package tmux

import (
	"context"
	"os/exec"
)

// SocketPrefix is the prefix of every teamwork tmux socket.
const SocketPrefix = "teamwork"

// TeamSocketName returns the socket isolating team's tmux server.
func TeamSocketName(team string) string {
	return SocketPrefix + "-" + team
}

// Available reports whether a tmux binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// CommandArgsWithSocket returns tmux arguments bound to socket.
func CommandArgsWithSocket(socket string, args ...string) []string {
	return append([]string{"-L", socket}, args...)
}

// CommandContextWithSocket creates a context-aware tmux command bound to socket.
func CommandContextWithSocket(ctx context.Context, socket string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "tmux", CommandArgsWithSocket(socket, args...)...)
}
