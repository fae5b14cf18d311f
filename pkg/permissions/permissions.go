// Package permissions maps (role, session type) pairs to capability sets.
// Derivation happens once at join time; explicit grants recorded on the
// participant afterwards are honored by reading the persisted permissions,
// never by re-deriving.
package permissions

import "studysync/pkg/types"

// Derive returns the capability set policy allows for the given role in the
// given session type. Pure and deterministic: no I/O, same inputs always
// yield the same set.
//
// Rules:
//   - CanEdit: teachers and admins always; everyone else in any session
//     type except live_class.
//   - CanShareScreen, CanInviteOthers, IsModerator: teachers and admins only.
//   - CanComment, CanUseVoice, CanUseVideo: all roles.
func Derive(role, sessionType string) types.Permissions {
	elevated := role == types.RoleTeacher || role == types.RoleAdmin

	return types.Permissions{
		CanEdit:         elevated || sessionType != types.SessionTypeLiveClass,
		CanComment:      true,
		CanShareScreen:  elevated,
		CanUseVoice:     true,
		CanUseVideo:     true,
		CanInviteOthers: elevated,
		IsModerator:     elevated,
	}
}

// Moderator returns the full capability set granted to session creators
// regardless of what Derive would allow for their role.
func Moderator() types.Permissions {
	return types.Permissions{
		CanEdit:         true,
		CanComment:      true,
		CanShareScreen:  true,
		CanUseVoice:     true,
		CanUseVideo:     true,
		CanInviteOthers: true,
		IsModerator:     true,
	}
}
