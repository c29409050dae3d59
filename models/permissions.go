package models

// Permission is a server/channel permission bitfield.
type Permission uint64

const (
	PermissionManageChannel Permission = 1 << iota
	PermissionManageServer
	PermissionManagePermissions
	PermissionManageRole
	PermissionManageCustomisation
	_
	PermissionKickMembers
	PermissionBanMembers
	PermissionTimeoutMembers
	PermissionAssignRoles
	PermissionChangeNickname
	PermissionManageNicknames
	PermissionChangeAvatar
	PermissionRemoveAvatars
	_
	_
	_
	_
	_
	_
	PermissionViewChannel
	PermissionReadMessageHistory
	PermissionSendMessage
	PermissionManageMessages
	PermissionManageWebhooks
	PermissionInviteOthers
	PermissionSendEmbeds
	PermissionUploadFiles
	PermissionMasquerade
	PermissionReact
	PermissionConnect
	PermissionSpeak
)

// DefaultPermissionServer is granted to every member of a new server.
const DefaultPermissionServer = PermissionViewChannel |
	PermissionReadMessageHistory |
	PermissionSendMessage |
	PermissionInviteOthers |
	PermissionSendEmbeds |
	PermissionUploadFiles |
	PermissionConnect |
	PermissionSpeak |
	PermissionChangeNickname |
	PermissionChangeAvatar

func (p Permission) Has(q Permission) bool {
	return p&q == q
}
