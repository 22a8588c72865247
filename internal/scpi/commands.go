package scpi

import (
	"fmt"
	"strconv"

	"github.com/benchlab/benchcore/internal/transport"
)

// Device layers the IEEE-488.2 common command set over one connection.
// Every operation is a thin wrapper around one fixed protocol string;
// failures propagate unchanged from the transport.
type Device struct {
	conn transport.Conn
}

func NewDevice(conn transport.Conn) *Device {
	return &Device{conn: conn}
}

func (d *Device) Conn() transport.Conn {
	return d.conn
}

// Identify returns the raw *IDN? response
// (manufacturer,model,serial,firmware[,hardware]).
func (d *Device) Identify() (string, error) {
	return d.conn.Query("*IDN?")
}

// Reset restores the power-on defaults and clears the status registers.
func (d *Device) Reset() error {
	if err := d.conn.Write("*RST"); err != nil {
		return err
	}
	return d.ClearStatus()
}

func (d *Device) ClearStatus() error {
	return d.conn.Write("*CLS")
}

func (d *Device) SetEventStatusEnable(mask uint8) error {
	return d.conn.Write(fmt.Sprintf("*ESE %d", mask))
}

func (d *Device) EventStatusEnable() (uint8, error) {
	return d.queryUint8("*ESE?")
}

func (d *Device) EventStatusRegister() (uint8, error) {
	return d.queryUint8("*ESR?")
}

// OperationComplete arms the OPC bit in the event status register.
func (d *Device) OperationComplete() error {
	return d.conn.Write("*OPC")
}

// QueryOperationComplete blocks until all pending operations finish.
func (d *Device) QueryOperationComplete() (bool, error) {
	resp, err := d.conn.Query("*OPC?")
	if err != nil {
		return false, err
	}
	return resp == "1", nil
}

func (d *Device) SetServiceRequestEnable(mask uint8) error {
	return d.conn.Write(fmt.Sprintf("*SRE %d", mask))
}

func (d *Device) ServiceRequestEnable() (uint8, error) {
	return d.queryUint8("*SRE?")
}

func (d *Device) StatusByte() (uint8, error) {
	return d.queryUint8("*STB?")
}

// SelfTest runs the instrument self-test; 0 means pass.
func (d *Device) SelfTest() (int, error) {
	resp, err := d.conn.Query("*TST?")
	if err != nil {
		return 0, err
	}
	code, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("malformed self-test result %q: %w", resp, err)
	}
	return code, nil
}

// Wait blocks further commands until pending operations complete.
func (d *Device) Wait() error {
	return d.conn.Write("*WAI")
}

// Trigger issues a bus trigger.
func (d *Device) Trigger() error {
	return d.conn.Write("*TRG")
}

func (d *Device) queryUint8(cmd string) (uint8, error) {
	resp, err := d.conn.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(resp, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("malformed register value %q for %s: %w", resp, cmd, err)
	}
	return uint8(v), nil
}
