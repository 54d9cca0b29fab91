package repo

// Keys of the settings persisted between runs.
const (
	KeyUserPage       = "userPage"
	KeyPrivacy        = "privacy"
	KeyDesignatedUser = "designatedUser"
	KeyVideoQuality   = "videoQuality"
)

type SettingsRepo interface {
	// Get returns the value stored under key, or "" if there is none.
	Get(key string) (string, error)

	// Set saves or replaces the value stored under key.
	Set(key, value string) error

	// All returns every stored setting.
	All() (map[string]string, error)

	// Close closes the repository connection.
	Close() error
}
