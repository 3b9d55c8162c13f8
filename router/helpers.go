package router

import "dualcore-go/ipc"

// SendIMU forwards a raw IMU frame to the peer.
func (r *Router) SendIMU(d ipc.IMUData) error {
	m, err := ipc.NewPayload(ipc.CmdIMUData, 0, d)
	if err != nil {
		return err
	}
	return r.SendMsg(m)
}

// SendButtonEvent reports a button edge; Value carries the button id.
func (r *Router) SendButtonEvent(id uint8, pressed bool, tick uint32) error {
	m, err := ipc.NewPayload(ipc.CmdButtonEvent, uint32(id), ipc.ButtonData{ID: id, Pressed: pressed, Timestamp: tick})
	if err != nil {
		return err
	}
	return r.SendMsg(m)
}

// SendLED reports an LED state at full brightness.
func (r *Router) SendLED(id uint8, on bool) error {
	m, err := ipc.NewPayload(ipc.CmdLEDSet, uint32(id), ipc.LEDData{ID: id, On: on, Brightness: 100})
	if err != nil {
		return err
	}
	return r.SendMsg(m)
}
