package rbac

// Roles resolved by the identity store.
const (
	RoleUser        = "user"
	RoleCoordinator = "coordinator"
	RoleConvener    = "convener"
	RoleAdmin       = "admin"
	RoleSuperAdmin  = "super_admin"
)

// RolePermissions is the default policy. Grading and publication stay with
// admin and super_admin; coordinators and conveners only read.
var RolePermissions = map[string][]string{
	RoleUser: {
		"exam:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"certificate:view-own",
		"certificate:issue-own",
	},
	RoleCoordinator: {
		"exam:view",
		"attempt:view-own",
		"attempt:view-all",
		"results:view",
	},
	RoleConvener: {
		"exam:view",
		"attempt:view-own",
		"attempt:view-all",
		"results:view",
	},
	RoleAdmin: {
		"exam:*",
		"attempt:view-all",
		"attempt:view-own",
		"answer:evaluate",
		"results:*",
		"certificate:*",
		"users:create",
	},
	RoleSuperAdmin: {
		"*", // everything
	},
}
