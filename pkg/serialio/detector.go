package serialio

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"
)

// Default USB identifiers for the panel's debug interface: ARM DAPLink
// vendor, CMSIS-DAP product.
const (
	DefaultVID uint16 = 0x0D28
	DefaultPID uint16 = 0x0204
)

// PortLister enumerates the host's serial devices. Tests swap it out to run
// without hardware.
var PortLister = enumerator.GetDetailedPortsList

// Detect returns the device name (e.g. /dev/ttyACM0, COM12) of the first
// serial port whose USB vendor/product pair matches. ok is false when no
// such device is present; detection never fails fatally.
func Detect(vid, pid uint16) (name string, ok bool) {
	ports, err := PortLister()
	if err != nil {
		log.Warnf("[SERIAL] port enumeration failed: %v", err)
		return "", false
	}

	wantVID := fmt.Sprintf("%04X", vid)
	wantPID := fmt.Sprintf("%04X", pid)
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, wantVID) && strings.EqualFold(p.PID, wantPID) {
			log.Infof("[SERIAL] found alarm panel on %s", p.Name)
			return p.Name, true
		}
	}

	log.Warnf("[SERIAL] no device matching %s:%s found", wantVID, wantPID)
	return "", false
}
