package joints

// StateHandle gives read access to one joint of a state set.
type StateHandle struct {
	name string
	i    int
	js   *JointSet
}

// CommandHandle gives write access to one joint of a command set. Writes are
// only safe between the end of one Read and the start of the next.
type CommandHandle struct {
	StateHandle
}

// StateHandle resolves a read handle by joint name.
func (js *JointSet) StateHandle(name string) (StateHandle, error) {
	i, err := js.Index(name)
	if err != nil {
		return StateHandle{}, err
	}
	return StateHandle{name: name, i: i, js: js}, nil
}

// CommandHandle resolves a write handle by joint name.
func (js *JointSet) CommandHandle(name string) (CommandHandle, error) {
	h, err := js.StateHandle(name)
	if err != nil {
		return CommandHandle{}, err
	}
	return CommandHandle{StateHandle: h}, nil
}

func (h StateHandle) Name() string            { return h.name }
func (h StateHandle) Position() float64       { return h.js.Position[h.i] }
func (h StateHandle) Velocity() float64       { return h.js.Velocity[h.i] }
func (h StateHandle) Effort() float64         { return h.js.Effort[h.i] }
func (h CommandHandle) SetPosition(v float64) { h.js.Position[h.i] = v }
