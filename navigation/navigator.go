// Package navigation is the side channel through which the route guard and
// the redirect coordinator ask the router to move to another path.
package navigation

import (
	"net/url"
	"strings"
	"sync"
)

// RedirectParam is the query parameter carrying the originally requested path
const RedirectParam = "redirect"

// Navigator issues "navigate to path" commands to the router
type Navigator interface {
	Navigate(path string, replace bool)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string, replace bool)

// Navigate implements Navigator
func (f NavigatorFunc) Navigate(path string, replace bool) {
	f(path, replace)
}

// Command is one recorded navigation
type Command struct {
	Path    string
	Replace bool
}

// Recorder is a Navigator that keeps every command it receives
type Recorder struct {
	mu       sync.Mutex
	commands []Command
}

// Navigate implements Navigator
func (r *Recorder) Navigate(path string, replace bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Path: path, Replace: replace})
}

// Commands returns a copy of the recorded commands
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Last returns the most recent command
func (r *Recorder) Last() (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return Command{}, false
	}
	return r.commands[len(r.commands)-1], true
}

// Count returns the number of recorded commands
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// LoginRedirect returns the login path carrying from as the redirect
// parameter, e.g. /login?redirect=%2Fcheckout
func LoginRedirect(loginPath, from string) string {
	if from == "" {
		return loginPath
	}
	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}
	return loginPath + sep + url.Values{RedirectParam: {from}}.Encode()
}

// SafeRedirect returns target when it is a local absolute path and fallback
// otherwise. Scheme-relative and absolute URLs are rejected so a redirect
// parameter can never leave the shell.
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return target
}
