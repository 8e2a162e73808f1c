// Package ipc implements the newline-delimited JSON protocol spoken over the
// vtt owner socket. The first vtt process to bind the socket owns the live
// session; later invocations forward their command and print the reply.
package ipc

// Request is a single command sent to the session owner.
type Request struct {
	Command string `json:"command"`
}

// Response is the owner's reply. Transcript carries final session text for
// commands that end a recording.
type Response struct {
	OK         bool   `json:"ok"`
	State      string `json:"state,omitempty"`
	Message    string `json:"message,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}
