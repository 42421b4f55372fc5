package main

// Notifier fans out presence and message events to the right audience of
// connections. Every method here takes a snapshot of target handles under
// the registry's lock (via Registry's exported snapshot helpers), releases
// it, and only then performs transport writes — the canonical pattern
// grounded in the teacher's Room.Broadcast. A write failure to one
// recipient never prevents delivery to the others.
type Notifier struct {
	logger Logger
}

// NewNotifier returns a Notifier that logs write failures through lg.
func NewNotifier(lg Logger) *Notifier {
	return &Notifier{logger: lg}
}

func (n *Notifier) send(conn Conn, payload []byte, name string) {
	if err := conn.SendBinary(payload); err != nil {
		n.logger.Event("send_failed", map[string]any{"name": name, "err": err.Error()})
	}
}

// NotifyJoined delivers USER_JOINED (0x35) to every connected user except
// the joiner.
func (n *Notifier) NotifyJoined(reg *Registry, joiner, uuid string) {
	payload := newEncoder(opUserJoined).putStr8(joiner).putU8(byte(StatusActive)).bytes()
	targets := reg.ConnectedTargets()
	for _, t := range targets {
		if t.name == joiner {
			continue
		}
		n.send(t.conn, payload, t.name)
	}
}

// NotifyStatusChange delivers USER_STATUS_CHANGE (0x36) to every connected
// user, including the subject if they are themselves still connected.
// This is also the single delivery path for the consolidated
// USER_DISCONNECTED event (status == StatusDisconnected).
func (n *Notifier) NotifyStatusChange(reg *Registry, name string, status Status) {
	payload := newEncoder(opUserStatusChange).putStr8(name).putU8(byte(status)).bytes()
	targets := reg.ConnectedTargets()
	for _, t := range targets {
		n.send(t.conn, payload, t.name)
	}
}

// NotifyMessageBroadcast delivers NEW_MESSAGE (0x37) to every connected
// user, including the sender (spec §8 scenario 4: "alice receives the same
// frame as sender echo").
func (n *Notifier) NotifyMessageBroadcast(reg *Registry, sender, text string) {
	payload := newEncoder(opNewMessage).putStr8(sender).putStr8(text).bytes()
	targets := reg.ConnectedTargets()
	for _, t := range targets {
		n.send(t.conn, payload, t.name)
	}
}

// NotifyMessagePrivate delivers NEW_MESSAGE (0x37) to exactly {sender,
// recipient}, each only if still connected.
func (n *Notifier) NotifyMessagePrivate(reg *Registry, sender, recipient, text string) {
	payload := newEncoder(opNewMessage).putStr8(sender).putStr8(text).bytes()
	for _, name := range [2]string{sender, recipient} {
		conn, ok := reg.ConnIfConnected(name)
		if !ok {
			continue
		}
		n.send(conn, payload, name)
	}
}
