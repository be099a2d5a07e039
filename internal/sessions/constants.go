package sessions

// Recognized device categories
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Recognized traffic sources
const (
	SourceOrganic  = "organic"
	SourcePaid     = "paid"
	SourceSocial   = "social"
	SourceDirect   = "direct"
	SourceReferral = "referral"
	SourceEmail    = "email"
)

// Sentinels for unrecognized category values. Sessions carrying one stay in
// the global report but are excluded from that segmentation axis.
const (
	UnknownDevice = "__unknown_device__"
	UnknownSource = "__unknown_source__"
)
