package wifi

import (
	"errors"
	"math"

	"dualcore-go/ipc"
	"dualcore-go/services/wifi/wcm"
	"dualcore-go/x/mathx"
)

// rssi8 pins a vendor dBm reading into the wire's signed byte.
func rssi8(dbm int16) int8 {
	return int8(mathx.Clamp(dbm, math.MinInt8, math.MaxInt8))
}

// fromVendor folds the vendor security word into the wire enum.
func fromVendor(s wcm.Security) ipc.Security {
	switch s {
	case wcm.SecurityOpen:
		return ipc.SecurityOpen
	case wcm.SecurityWEPPSK, wcm.SecurityWEPShared:
		return ipc.SecurityWEP
	case wcm.SecurityWPATKIPPSK, wcm.SecurityWPAAESPSK, wcm.SecurityWPAMixedPSK:
		return ipc.SecurityWPA
	case wcm.SecurityWPA2AESPSK, wcm.SecurityWPA2TKIPPSK, wcm.SecurityWPA2MixedPSK, wcm.SecurityWPA2FBTPSK:
		return ipc.SecurityWPA2
	case wcm.SecurityWPA3SAE:
		return ipc.SecurityWPA3
	case wcm.SecurityWPA3WPA2PSK:
		return ipc.SecurityWPA2WPA3
	case wcm.SecurityWPA2WPAAESPSK, wcm.SecurityWPA2WPAMixedPSK:
		return ipc.SecurityWPAWPA2
	case wcm.SecurityWPATKIPEnt, wcm.SecurityWPAAESEnt, wcm.SecurityWPAMixedEnt,
		wcm.SecurityWPA2TKIPEnt, wcm.SecurityWPA2AESEnt, wcm.SecurityWPA2MixedEnt, wcm.SecurityWPA2FBTEnt:
		return ipc.SecurityEnterprise
	default:
		return ipc.SecurityUnknown
	}
}

// toVendor picks the credential type for a connect request; anything the
// station cannot join by passphrase falls back to WPA2-AES.
func toVendor(s ipc.Security) wcm.Security {
	switch s {
	case ipc.SecurityOpen:
		return wcm.SecurityOpen
	case ipc.SecurityWPA3:
		return wcm.SecurityWPA3SAE
	case ipc.SecurityWPA2WPA3:
		return wcm.SecurityWPA3WPA2PSK
	default:
		return wcm.SecurityWPA2AESPSK
	}
}

// connectError maps a vendor connect failure onto the reply code.
func connectError(err error) ipc.WifiError {
	switch {
	case errors.Is(err, wcm.ErrSecurityNotFound), errors.Is(err, wcm.ErrWaitTimeout):
		return ipc.WifiErrAuthFailed
	case errors.Is(err, wcm.ErrAPNotUp):
		return ipc.WifiErrNoAP
	default:
		return ipc.WifiErrUnknown
	}
}
