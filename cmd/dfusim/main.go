// Command dfusim runs one complete simulated DFU session against the
// control engine: enumeration, firmware download block by block, manifest,
// and flash verification, with every packet passing through the EP0 state
// machine exactly as it would on hardware.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sztsian/tomu-bootloader/dfu"
	"github.com/sztsian/tomu-bootloader/ep0"
	"github.com/sztsian/tomu-bootloader/ep0/hal"
	"github.com/sztsian/tomu-bootloader/ep0/hal/sim"
	"github.com/sztsian/tomu-bootloader/firmware"
	"github.com/sztsian/tomu-bootloader/pkg"
)

func main() {
	cmd := &cli.Command{
		Name:  "dfusim",
		Usage: "simulate a DFU firmware download through the EP0 control engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "firmware image to download (.hex or raw binary)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "block-size",
				Usage: "DFU transfer size in bytes",
				Value: dfu.DefaultBlockSize,
			},
			&cli.IntFlag{
				Name:  "flash-size",
				Usage: "simulated flash region size in bytes",
				Value: 64 * 1024,
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "write logs to this file (rotated) instead of stderr",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "log in JSON format",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dfusim:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	configureLogging(cmd)

	img, err := firmware.Load(cmd.String("image"))
	if err != nil {
		return err
	}
	blockSize := int(cmd.Int("block-size"))
	flashSize := int(cmd.Int("flash-size"))
	if len(img) > flashSize {
		return pkg.ErrImageTooLarge
	}

	flash := dfu.NewMemFlash(flashSize, blockSize)
	ctl := sim.New()
	eng := ep0.NewEngine(ctl, descriptorTable(), flash)
	host := &host{ctl: ctl, eng: eng}

	if err := eng.Init(); err != nil {
		return err
	}
	if err := eng.HandleEvent(hal.Event{Type: hal.EventReset}); err != nil {
		return err
	}
	if err := eng.HandleEvent(hal.Event{Type: hal.EventEnumDone}); err != nil {
		return err
	}

	if err := host.enumerate(); err != nil {
		return err
	}
	if err := host.download(img, blockSize); err != nil {
		return err
	}

	if !flash.Verify(img) {
		return fmt.Errorf("flash verification failed")
	}
	fmt.Printf("downloaded and verified %d bytes in %d-byte blocks (address %d)\n",
		len(img), blockSize, ctl.Address())
	return nil
}

// configureLogging applies the log flags. A --log path routes everything
// through a size-rotated file; otherwise logging stays on stderr.
func configureLogging(cmd *cli.Command) {
	if cmd.Bool("verbose") {
		pkg.SetLogLevel(slog.LevelDebug)
	} else {
		pkg.SetLogLevel(slog.LevelInfo)
	}
	jsonFormat := cmd.Bool("json")
	if path := cmd.String("log"); path != "" {
		sink := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		if jsonFormat {
			pkg.SetLogger(pkg.NewJSONLogger(sink, nil))
		} else {
			pkg.SetLogger(pkg.NewLogger(sink, nil))
		}
		return
	}
	if jsonFormat {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}
}

// host drives the device side of the simulation the way a USB host
// controller would: one SETUP, then data packets, then the handshake.
type host struct {
	ctl *sim.Controller
	eng *ep0.Engine
}

// enumerate performs the standard enumeration sequence a host runs before
// any DFU traffic.
func (h *host) enumerate() error {
	var s ep0.SetupPacket

	ep0.GetDescriptorSetup(&s, ep0.DescriptorTypeDevice, 0, 18)
	desc, err := h.controlRead(&s)
	if err != nil {
		return fmt.Errorf("get device descriptor: %w", err)
	}
	if len(desc) != 18 {
		return fmt.Errorf("device descriptor: got %d bytes, want 18", len(desc))
	}

	ep0.SetAddressSetup(&s, 5)
	if err := h.noData(&s); err != nil {
		return fmt.Errorf("set address: %w", err)
	}

	ep0.SetConfigurationSetup(&s, 1)
	if err := h.noData(&s); err != nil {
		return fmt.Errorf("set configuration: %w", err)
	}
	return nil
}

// download streams the image as DFU_DNLOAD blocks, polling GETSTATUS after
// each block, and manifests with a zero-length download.
func (h *host) download(img []byte, blockSize int) error {
	var s ep0.SetupPacket

	blocks := firmware.Blocks(img, blockSize)
	for i, blk := range blocks {
		ep0.DownloadSetup(&s, uint16(i), uint16(len(blk)))
		if err := h.controlWrite(&s, blk); err != nil {
			return fmt.Errorf("download block %d: %w", i, err)
		}
		rec, err := h.getStatus()
		if err != nil {
			return fmt.Errorf("status after block %d: %w", i, err)
		}
		if rec.Status != dfu.StatusOK {
			return fmt.Errorf("block %d: device status %s", i, rec.State)
		}
	}

	// Zero-length download manifests the new firmware.
	ep0.DownloadSetup(&s, uint16(len(blocks)), 0)
	if err := h.controlWrite(&s, nil); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	rec, err := h.getStatus()
	if err != nil {
		return fmt.Errorf("status after manifest: %w", err)
	}
	if rec.State != dfu.StateManifestWaitReset {
		return fmt.Errorf("manifest: device state %s", rec.State)
	}
	return nil
}

// getStatus issues DFU_GETSTATUS and parses the reply.
func (h *host) getStatus() (dfu.StatusRecord, error) {
	var s ep0.SetupPacket
	var rec dfu.StatusRecord
	ep0.DFUGetStatusSetup(&s)
	reply, err := h.controlRead(&s)
	if err != nil {
		return rec, err
	}
	if err := dfu.ParseStatusRecord(reply, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// controlRead runs a full control READ: SETUP, IN data packets until the
// engine expects the status handshake, then the zero-length OUT.
func (h *host) controlRead(s *ep0.SetupPacket) ([]byte, error) {
	if err := h.eng.HandleEvent(h.ctl.SetupEvent(halSetup(s))); err != nil {
		return nil, err
	}
	var reply []byte
	for h.eng.State() != ep0.WaitStatusOut {
		ev, pkt, err := h.ctl.InEvent()
		if err != nil {
			return nil, err
		}
		if err := h.eng.HandleEvent(ev); err != nil {
			return nil, err
		}
		reply = append(reply, pkt...)
	}
	ev, err := h.ctl.OutEvent(nil)
	if err != nil {
		return nil, err
	}
	if err := h.eng.HandleEvent(ev); err != nil {
		return nil, err
	}
	return reply, nil
}

// controlWrite runs a full control WRITE: SETUP, OUT data packets of at
// most the packet size, then the zero-length IN handshake.
func (h *host) controlWrite(s *ep0.SetupPacket, data []byte) error {
	if err := h.eng.HandleEvent(h.ctl.SetupEvent(halSetup(s))); err != nil {
		return err
	}
	for len(data) > 0 {
		n := ep0.MaxPacketSize
		if n > len(data) {
			n = len(data)
		}
		ev, err := h.ctl.OutEvent(data[:n])
		if err != nil {
			return err
		}
		if err := h.eng.HandleEvent(ev); err != nil {
			return err
		}
		data = data[n:]
	}
	return h.statusIn()
}

// noData runs a no-data control request: SETUP then the IN handshake.
func (h *host) noData(s *ep0.SetupPacket) error {
	if err := h.eng.HandleEvent(h.ctl.SetupEvent(halSetup(s))); err != nil {
		return err
	}
	return h.statusIn()
}

// statusIn completes the zero-length IN status handshake.
func (h *host) statusIn() error {
	ev, pkt, err := h.ctl.InEvent()
	if err != nil {
		return err
	}
	if len(pkt) != 0 {
		return pkg.ErrProtocol
	}
	return h.eng.HandleEvent(ev)
}

// halSetup converts the request into the raw form the controller delivers.
func halSetup(s *ep0.SetupPacket) hal.SetupPacket {
	return hal.SetupPacket{
		RequestType: s.RequestType,
		Request:     s.Request,
		Value:       s.Value,
		Index:       s.Index,
		Length:      s.Length,
	}
}

// descriptorTable builds the bootloader's descriptor set: a DFU-mode device
// with one configuration carrying the DFU interface, plus the Microsoft OS
// descriptors that make Windows bind WinUSB without a driver package.
func descriptorTable() *ep0.DescriptorTable {
	table := &ep0.DescriptorTable{VendorCode: 0x42}

	device := []byte{
		18, ep0.DescriptorTypeDevice,
		0x00, 0x02, // bcdUSB 2.00
		0x00, 0x00, 0x00, // class/subclass/protocol: per interface
		ep0.MaxPacketSize,
		0x09, 0x12, // idVendor 0x1209
		0xB1, 0x70, // idProduct 0x70B1
		0x01, 0x01, // bcdDevice 1.01
		1, 2, 0, // iManufacturer, iProduct, iSerialNumber
		1, // bNumConfigurations
	}

	config := []byte{
		9, ep0.DescriptorTypeConfiguration,
		27, 0, // wTotalLength
		1,    // bNumInterfaces
		1,    // bConfigurationValue
		0,    // iConfiguration
		0x80, // bmAttributes: bus powered
		50,   // bMaxPower: 100 mA

		// DFU interface
		9, ep0.DescriptorTypeInterface,
		0,                // bInterfaceNumber
		0,                // bAlternateSetting
		0,                // bNumEndpoints: control only
		0xFE, 0x01, 0x02, // application specific / DFU / DFU mode
		0, // iInterface

		// DFU functional descriptor
		9, 0x21,
		0x0D,       // bmAttributes: will detach, can download, not manifest tolerant
		0x00, 0x01, // wDetachTimeout
		byte(dfu.DefaultBlockSize & 0xFF), byte(dfu.DefaultBlockSize >> 8),
		0x10, 0x01, // bcdDFUVersion 1.10
	}

	langID := []byte{4, ep0.DescriptorTypeString, 0x09, 0x04}
	manufacturer := stringDescriptor("Kosagi")
	product := stringDescriptor("Tomu Bootloader")

	// OS string descriptor: "MSFT100" + vendor code.
	osString := []byte{
		18, ep0.DescriptorTypeString,
		'M', 0, 'S', 0, 'F', 0, 'T', 0, '1', 0, '0', 0, '0', 0,
		table.VendorCode, 0,
	}

	table.Add(uint16(ep0.DescriptorTypeDevice)<<8, device)
	table.Add(uint16(ep0.DescriptorTypeConfiguration)<<8, config)
	table.Add(uint16(ep0.DescriptorTypeString)<<8, langID)
	table.Add(uint16(ep0.DescriptorTypeString)<<8|1, manufacturer)
	table.Add(uint16(ep0.DescriptorTypeString)<<8|2, product)
	table.Add(uint16(ep0.DescriptorTypeString)<<8|0xEE, osString)

	// Extended compatible ID descriptor binding interface 0 to WinUSB.
	table.CompatID = []byte{
		40, 0, 0, 0, // dwLength
		0x00, 0x01, // bcdVersion 1.00
		0x04, 0x00, // wIndex: extended compat ID
		1,                   // bCount
		0, 0, 0, 0, 0, 0, 0, // reserved
		0,                                      // bFirstInterfaceNumber
		1,                                      // reserved
		'W', 'I', 'N', 'U', 'S', 'B', 0, 0,     // compatibleID
		0, 0, 0, 0, 0, 0, 0, 0,                 // subCompatibleID
		0, 0, 0, 0, 0, 0,                       // reserved
	}

	return table
}

// stringDescriptor encodes s as a UTF-16LE USB string descriptor.
func stringDescriptor(s string) []byte {
	d := make([]byte, 2, 2+2*len(s))
	for _, r := range s {
		d = append(d, byte(r), byte(uint16(r)>>8))
	}
	d[0] = byte(len(d))
	d[1] = ep0.DescriptorTypeString
	return d
}
