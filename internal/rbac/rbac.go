package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleAuthor Role = "author"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionDraft   Action = "draft"
	ActionWrite   Action = "write"
	ActionPublish Action = "publish"
	ActionAdmin   Action = "admin"
)

// Can reports whether role may perform action. Authors may edit and save
// drafts; publishing needs an editor.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action != ActionAdmin
	case RoleAuthor:
		return action == ActionRead || action == ActionDraft || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps a claimed role onto a known one. Tokens issued without a
// role belong to the site owner and act as editors.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAuthor, RoleEditor, RoleAdmin:
		return Role(role)
	case "":
		return RoleEditor
	default:
		return RoleViewer
	}
}
