// ABOUTME: Version information for sendspin-transcode
// ABOUTME: Product and release version, plus the mDNS TXT records announcing them
package version

const (
	// Version is the software version
	Version = "0.1.0"
	// Product is the product name announced to listeners and over mDNS
	Product = "Sendspin Transcode"
)

// TXT returns the mDNS TXT records identifying this build
func TXT() []string {
	return []string{
		"product=" + Product,
		"version=" + Version,
	}
}
