package auth

// permissions are strings like "consultation:submit", "admin:*"
const (
	PermConsultSubmit  = "consultation:submit"
	PermConsultReadOwn = "consultation:read_own"
	PermConsultReadAll = "consultation:read_all"
	PermAdminAll       = "admin:*"
)

var roleToPerms = map[string][]string{
	"user":  {PermConsultSubmit, PermConsultReadOwn},
	"admin": {PermConsultSubmit, PermConsultReadAll, PermAdminAll},
}

func PermsForRoles(roles []string) map[string]struct{} {
	out := make(map[string]struct{}, 8)
	for _, r := range roles {
		if perms, ok := roleToPerms[r]; ok {
			for _, p := range perms {
				out[p] = struct{}{}
			}
		}
	}
	return out
}
