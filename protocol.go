package main

// Wire opcodes (spec §6). Client-to-server opcodes are small integers;
// server-to-client opcodes start at 50 to keep the two directions visually
// distinct in captures and logs.
const (
	opListUsers     byte = 1
	opGetUserInfo   byte = 2
	opChangeStatus  byte = 3
	opSendMessage   byte = 4
	opGetHistory    byte = 5

	opError             byte = 50
	opListUsersReply    byte = 51
	opUserInfoReply     byte = 52
	opUserJoined        byte = 53
	opUserStatusChange  byte = 54
	opNewMessage        byte = 55
	opHistoryReply      byte = 56
)

// Error codes carried in an ERROR (50) frame's single payload byte.
const (
	errUserNotFound           byte = 1
	errInvalidOrUnauthorized  byte = 2
	errEmptyMessage           byte = 3
	errDestinationDisconnected byte = 4
)
