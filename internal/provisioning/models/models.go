package models

// Account is a login in a tenant realm: the first admin created with the
// realm, or a member added later.
type Account struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Step names, also used as metric labels and in error responses.
const (
	StepRegistry  = "registry"
	StepPartition = "partition"
	StepRealm     = "realm"
	StepRoles     = "roles"
	StepClient    = "client"
	StepAdminUser = "admin_user"
	StepMirror    = "mirror_user"
	StepActivate  = "activate"
)
