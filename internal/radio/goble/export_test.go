package goble

var (
	BuildAdvertising      = buildAdvertising
	AdvertisingParameters = advertisingParameters
)
