package main

import "time"

// dispatchFrame implements spec §4.E. It identifies the sender by scanning
// the registry for the matching connection handle, refreshes last_active,
// special-cases INACTIVE reactivation, then routes on the opcode byte.
// Any codec error is logged and the frame dropped; the connection stays
// open (malformed input is never a reason to close it).
func dispatchFrame(reg *Registry, hist *HistoryStore, notif *Notifier, lg Logger, counters *Counters, conn Conn, frame []byte) {
	sender, ok := reg.LookupByConn(conn)
	if !ok {
		// The connection already detached (e.g. a frame racing on_close);
		// nothing to attribute this frame to.
		return
	}

	d := newDecoder(frame)
	op, err := d.readU8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "err": err.Error()})
		return
	}

	now := time.Now()
	reg.Touch(sender, now)

	switch op {
	case opListUsers:
		handleListUsers(reg, conn)
	case opGetUserInfo:
		handleGetUserInfo(d, reg, conn, lg, sender)
	case opChangeStatus:
		handleChangeStatus(d, reg, notif, conn, lg, sender)
	case opSendMessage:
		handleSendMessage(d, reg, hist, notif, conn, lg, counters, sender, now)
	case opGetHistory:
		handleGetHistory(d, hist, conn, lg, sender)
	default:
		lg.Event("unknown_opcode", map[string]any{"name": sender, "op": op})
	}
}

func handleListUsers(reg *Registry, conn Conn) {
	users := reg.Snapshot()
	e := newEncoder(opListUsersReply).putU8(clampCount(len(users)))
	n := len(users)
	if n > 255 {
		n = 255
	}
	for _, u := range users[:n] {
		e.putStr8(u.Username).putU8(byte(u.Status))
	}
	writeTo(conn, e.bytes())
}

func clampCount(n int) byte {
	if n > 255 {
		return 255
	}
	return byte(n)
}

func handleGetUserInfo(d *decoder, reg *Registry, conn Conn, lg Logger, sender string) {
	name, err := d.readStr8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "op": "get_user_info", "err": err.Error()})
		return
	}
	info, ok := reg.Lookup(name)
	if !ok {
		writeTo(conn, newEncoder(opError).putU8(errUserNotFound).bytes())
		return
	}
	writeTo(conn, newEncoder(opUserInfoReply).putStr8(info.Username).putU8(byte(info.Status)).bytes())
}

func handleChangeStatus(d *decoder, reg *Registry, notif *Notifier, conn Conn, lg Logger, sender string) {
	name, err := d.readStr8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "op": "change_status", "err": err.Error()})
		return
	}
	raw, err := d.readU8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "op": "change_status", "err": err.Error()})
		return
	}

	if name != sender || !statusValid(raw) {
		writeTo(conn, newEncoder(opError).putU8(errInvalidOrUnauthorized).bytes())
		return
	}

	newStatus := Status(raw)
	reg.UpdateStatus(sender, newStatus, time.Now())
	notif.NotifyStatusChange(reg, sender, newStatus)
}

func handleSendMessage(d *decoder, reg *Registry, hist *HistoryStore, notif *Notifier, conn Conn, lg Logger, counters *Counters, sender string, now time.Time) {
	// Reactivation keys on the opcode alone, unconditionally. Even a
	// malformed or empty SEND_MESSAGE still revives an INACTIVE sender, so
	// this runs before the payload is parsed or validated at all.
	if info, ok := reg.Lookup(sender); ok && info.Status == StatusInactive {
		reg.UpdateStatus(sender, StatusActive, now)
		notif.NotifyStatusChange(reg, sender, StatusActive)
	}

	dest, err := d.readStr8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "op": "send_message", "err": err.Error()})
		return
	}
	text, err := d.readStr8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "op": "send_message", "err": err.Error()})
		return
	}

	if len(text) == 0 {
		writeTo(conn, newEncoder(opError).putU8(errEmptyMessage).bytes())
		return
	}
	text = truncateText(text)

	if dest == generalChatID {
		hist.AppendGeneral(sender, text, now)
		notif.NotifyMessageBroadcast(reg, sender, text)
		counters.messagesSent.Add(1)
		return
	}

	target, ok := reg.Lookup(dest)
	if !ok || !target.Connected {
		writeTo(conn, newEncoder(opError).putU8(errDestinationDisconnected).bytes())
		return
	}

	hist.AppendPrivate(sender, dest, text, now)
	notif.NotifyMessagePrivate(reg, sender, dest, text)
	counters.messagesSent.Add(1)
}

func handleGetHistory(d *decoder, hist *HistoryStore, conn Conn, lg Logger, sender string) {
	target, err := d.readStr8()
	if err != nil {
		lg.Event("codec_error", map[string]any{"name": sender, "op": "get_history", "err": err.Error()})
		return
	}

	entries := hist.Read(sender, target)
	e := newEncoder(opHistoryReply).putU8(clampCount(len(entries)))
	for _, entry := range entries {
		e.putStr8(entry.From).putStr8(entry.Text)
	}
	writeTo(conn, e.bytes())
}

func writeTo(conn Conn, payload []byte) {
	_ = conn.SendBinary(payload)
}
