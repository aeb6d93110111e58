package protocol

import "github.com/alborrajo/alicia-server/internal/wire"

// FinalNotify is broadcast when Racing→Finishing is triggered by the
// race timeout rather than a racer's own UserRaceFinal, telling every
// surviving client to commit its local result (spec §4.8).
type FinalNotify struct{}

func (m *FinalNotify) Command() CommandID       { return CmdFinalNotify }
func (m *FinalNotify) Read(r *wire.Reader) error { return nil }
func (m *FinalNotify) Write(w *wire.Writer)      {}
