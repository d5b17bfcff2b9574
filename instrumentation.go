// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

// Instrumentation receives the request-lifecycle events spec.md §4.5/§4.6
// name (BeginWrite/EndWrite, BeginRead/EndRead, Cancellation). The sink that
// actually records or exports these events — a metrics pipeline, a tracing
// exporter — is an external collaborator out of this package's scope
// (spec.md §1); this package only ever calls the interface.
type Instrumentation interface {
	BeginWrite(token any, streamID int8)
	EndWrite(token any, streamID int8, err error)
	BeginRead(token any, streamID int8)
	EndRead(token any, streamID int8, err error)
	Cancellation(token any, streamID int8)
}

// noopInstrumentation discards every event. It is the default so callers
// that don't care about instrumentation never nil-check.
type noopInstrumentation struct{}

func (noopInstrumentation) BeginWrite(any, int8)      {}
func (noopInstrumentation) EndWrite(any, int8, error) {}
func (noopInstrumentation) BeginRead(any, int8)       {}
func (noopInstrumentation) EndRead(any, int8, error)  {}
func (noopInstrumentation) Cancellation(any, int8)    {}
