package handler

import (
	"sync"

	"github.com/pavelanni/ieltsprep/internal/session"
)

// workspace is one user's set of practice controllers.
type workspace struct {
	reading  *session.Reading
	writing  *session.Writing
	speaking *session.Speaking
}

// workspaces keeps a workspace per logged-in user for the life of the process.
type workspaces struct {
	deps     session.Deps
	grader   session.Grader
	examiner session.Examiner

	mu     sync.Mutex
	byUser map[string]*workspace
}

func newWorkspaces(deps session.Deps, grader session.Grader, examiner session.Examiner) *workspaces {
	return &workspaces{deps: deps, grader: grader, examiner: examiner, byUser: map[string]*workspace{}}
}

func (ws *workspaces) get(userID string) *workspace {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	w, ok := ws.byUser[userID]
	if !ok {
		w = &workspace{
			reading:  session.NewReading(ws.deps),
			writing:  session.NewWriting(ws.deps, ws.grader),
			speaking: session.NewSpeaking(ws.deps, ws.examiner),
		}
		ws.byUser[userID] = w
	}
	return w
}

func (ws *workspaces) drop(userID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.byUser, userID)
}
