package model

type StaffRole string

const (
	StaffRoleDoctor StaffRole = "doctor"
	StaffRoleNurse  StaffRole = "nurse"
	StaffRoleAdmin  StaffRole = "admin"
)

func (r StaffRole) IsValid() bool {
	return r == StaffRoleDoctor || r == StaffRoleNurse || r == StaffRoleAdmin
}

const DefaultMaxPatientLoad = 10

// Staff is a member of the medical team who can be alerted or take cases.
type Staff struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      StaffRole `json:"role" db:"role"`
	Email     string    `json:"email,omitempty" db:"email"`
	Available bool      `json:"available" db:"available"`

	// MaxPatientLoad caps the open cases a doctor may hold; zero means
	// DefaultMaxPatientLoad.
	MaxPatientLoad int `json:"max_patient_load,omitempty" db:"max_patient_load"`

	// PasswordHash is a bcrypt hash; empty disables login for the member.
	PasswordHash string `json:"-" db:"password_hash"`
}

// DoctorRef is a weak reference to the assigned clinician.
type DoctorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s Staff) PatientCapacity() int {
	if s.MaxPatientLoad <= 0 {
		return DefaultMaxPatientLoad
	}
	return s.MaxPatientLoad
}

func (s Staff) Ref() DoctorRef {
	return DoctorRef{ID: s.ID, Name: s.Name}
}
