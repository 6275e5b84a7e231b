package extalife

import (
	"context"
	"strings"

	"golang.org/x/mod/semver"
)

// VersionInfo describes controller firmware versions as reported by the
// CHECK_VERSION command.
type VersionInfo struct {
	Installed       string `json:"installed"`
	Web             string `json:"web"`
	Beta            string `json:"beta"`
	UpdateAvailable bool   `json:"update_available"`
}

// CheckVersion queries the controller firmware version. With checkWeb the
// controller also reports the latest version published on the vendor site.
func (c *Client) CheckVersion(ctx context.Context, checkWeb bool) (VersionInfo, error) {
	resp, err := c.Exec(ctx, CmdCheckVersion, Data{"check_web_version": checkWeb})
	if err != nil {
		return VersionInfo{}, err
	}
	if len(resp.Data) == 0 {
		return VersionInfo{}, &ConnError{Op: "empty version response"}
	}

	data := resp.Data[0]
	info := VersionInfo{}
	info.Installed, _ = data["installed_version"].(string)
	info.Web, _ = data["web_version"].(string)
	info.Beta, _ = data["beta_software"].(string)
	if state, ok := toInt(data["update_state"]); ok {
		info.UpdateAvailable = state > 0
	}
	// the update_state flag is unreliable on older firmware, double-check
	// against the reported web version
	if !info.UpdateAvailable && info.Web != "" {
		info.UpdateAvailable = versionLess(info.Installed, info.Web)
	}
	return info, nil
}

// Version returns the firmware version info captured at connect time.
func (c *Client) Version() VersionInfo {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.ver
}

// versionLess reports whether firmware version a predates b. Controller
// versions come without the "v" prefix semver.Compare expects.
func versionLess(a, b string) bool {
	ca, cb := canonicalVersion(a), canonicalVersion(b)
	if ca == "" || cb == "" {
		return false
	}
	return semver.Compare(ca, cb) < 0
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
