package domain

// DefaultDismissAction is the label of the single button on every alert.
const DefaultDismissAction = "Ok"

// Alert is a user-facing message with a single dismiss action.
type Alert struct {
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	DismissAction string `json:"dismiss_action"`
}

// Alert kinds
const (
	AlertKindLocationUnavailable = "location_unavailable"
	AlertKindLocationRestricted  = "location_restricted"
	AlertKindLocationDenied      = "location_denied"
	AlertKindLocationDisabled    = "location_disabled"
	AlertKindStoreFetch          = "store_fetch"
	AlertKindStoreSave           = "store_save"
	AlertKindInvalidDeadline     = "invalid_deadline"
)

// Alert catalogue
var (
	AlertLocationUnavailable = Alert{
		Kind:          AlertKindLocationUnavailable,
		Title:         "Locations Error",
		Message:       "Unable to retrieve locations at this time.\nPlease try again.",
		DismissAction: DefaultDismissAction,
	}

	AlertLocationRestricted = Alert{
		Kind:          AlertKindLocationRestricted,
		Title:         "Locations Restricted",
		Message:       "Your location is restricted. This may be due to parental controls.",
		DismissAction: DefaultDismissAction,
	}

	AlertLocationDenied = Alert{
		Kind:          AlertKindLocationDenied,
		Title:         "Locations Denied",
		Message:       "App does not have permission to access your location. To change that, go to your phone's Settings.",
		DismissAction: DefaultDismissAction,
	}

	AlertLocationDisabled = Alert{
		Kind:          AlertKindLocationDisabled,
		Title:         "Location Services Disabled",
		Message:       "Your phone's location services are disabled. To change that, go to your phone's Settings.",
		DismissAction: DefaultDismissAction,
	}

	AlertStoreFetch = Alert{
		Kind:          AlertKindStoreFetch,
		Title:         "Data Error",
		Message:       "Unable to load your tasks right now. We'll try again shortly.",
		DismissAction: DefaultDismissAction,
	}

	AlertStoreSave = Alert{
		Kind:          AlertKindStoreSave,
		Title:         "Save Error",
		Message:       "Unable to save your tasks right now. No changes were lost; we'll try again shortly.",
		DismissAction: DefaultDismissAction,
	}

	AlertInvalidDeadline = Alert{
		Kind:          AlertKindInvalidDeadline,
		Title:         "Invalid Deadline",
		Message:       "Deadlines must be at least two minutes in the future.",
		DismissAction: DefaultDismissAction,
	}
)
