/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package daemon wires the byte-level decode pipeline (device transport ->
// packet sniffer/fast-packet reassembler -> driver -> session engine) into
// a supervised set of goroutines, mirroring ptp4u/server.Server.Start's
// wait-for-any-goroutine-to-finish shape but built on errgroup, the direct
// idiomatic upgrade: the first failing goroutine cancels the shared context
// and every other goroutine unwinds off it.
package daemon

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/pvtd/config"
	"github.com/facebook/pvtd/device"
	"github.com/facebook/pvtd/driver"
	"github.com/facebook/pvtd/fastpacket"
	"github.com/facebook/pvtd/metrics"
	"github.com/facebook/pvtd/packet"
	"github.com/facebook/pvtd/pps"
	"github.com/facebook/pvtd/pvt"
	"github.com/facebook/pvtd/session"
	"github.com/facebook/pvtd/shmexport"
)

// Daemon owns every long-lived subsystem for one run of the server.
type Daemon struct {
	Config  *config.Config
	Engine  *session.Engine
	Metrics *metrics.Metrics
	PPS     *pps.Store

	devices  map[string]device.ReadWriter
	shmClock *shmexport.Writer
	shmPath  string
}

// New builds a Daemon from a validated config. Call Run to start it.
func New(cfg *config.Config) *Daemon {
	return &Daemon{
		Config:  cfg,
		Engine:  session.NewEngine(),
		Metrics: metrics.New(),
		PPS:     pps.NewStore(),
		devices: make(map[string]device.ReadWriter),
	}
}

// Run opens every configured device and starts the client listener, control
// listener, and metrics server, blocking until ctx is canceled or any
// supervised goroutine returns a fatal error.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if d.Config.SHMUnit > 0 {
		w, err := shmexport.NewWriter(d.Config.SHMUnit + shmexport.ClockUnitOffset)
		if err != nil {
			return fmt.Errorf("daemon: shm unit %d: %w", d.Config.SHMUnit, err)
		}
		d.shmClock = w
		if len(d.Config.Devices) > 0 {
			d.shmPath = d.Config.Devices[0].Path
		}
		defer w.Close()
	}

	for _, prof := range d.Config.Devices {
		prof := prof
		rw, err := device.Open(ctx, prof.Path)
		if err != nil {
			return fmt.Errorf("daemon: open device %s: %w", prof.Path, err)
		}
		d.devices[prof.Path] = rw

		snap := pvt.NewDeviceSnapshot(prof.Path)
		snap.Active = true
		snap.Baud = prof.Baud
		d.Engine.AddDevice(snap)
		d.Metrics.SetDevicesOpen(len(d.devices))

		switch transport := rw.(type) {
		case *device.CAN:
			g.Go(func() error { return d.pollCAN(ctx, prof.Path, transport) })
		default:
			g.Go(func() error { return d.pollByteStream(ctx, prof.Path, rw) })
		}

		if prof.PPS {
			g.Go(func() error { return d.runPPS(ctx, prof.Path) })
		}
	}

	if d.Config.ListenAddr != "" {
		g.Go(func() error { return d.serveClients(ctx) })
	}
	if d.Config.ControlSocket != "" {
		g.Go(func() error { return d.serveControl(ctx) })
	}
	if d.Config.MetricsAddr != "" {
		g.Go(func() error { return d.Metrics.ListenAndServe(d.Config.MetricsAddr) })
	}

	return g.Wait()
}

// pollByteStream feeds a serial or TCP transport's bytes through the
// sniffer and hands every recognized frame to its driver.
func (d *Daemon) pollByteStream(ctx context.Context, path string, rw device.ReadWriter) error {
	sniffer := packet.NewSniffer()
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := rw.Read(buf)
		if err != nil {
			log.WithError(err).WithField("device", path).Error("daemon: device read failed")
			d.Engine.RemoveDevice(path)
			return fmt.Errorf("daemon: device %s: %w", path, err)
		}
		if n == 0 {
			continue
		}
		now := time.Now()
		for _, frame := range sniffer.Feed(buf[:n], now) {
			d.decodeFrame(path, frame)
		}
	}
}

func (d *Daemon) decodeFrame(path string, frame packet.Frame) {
	drv, ok := driver.PacketTypeDriver[frame.Type]
	if !ok {
		return
	}
	format := frame.Type.String()
	result, err := drv.Decode(frame.Raw, frame.Seen)
	if err != nil {
		d.Metrics.IncDecodeErrors(format)
		log.WithError(err).WithField("device", path).Debug("daemon: decode failed")
		return
	}
	d.Metrics.IncFramesDecoded(format)
	d.applyResult(path, result)
}

func (d *Daemon) applyResult(path string, result driver.Result) {
	d.Engine.Dispatch(path, result.Changes, result.Fix, result.Status, result.SentenceTag)
	d.Engine.UpdateProfiling(path, pvt.Profiling{
		Receive:      time.Now(),
		Decode:       time.Now(),
		SentenceTime: result.SentenceTime,
	})

	snap, ok := d.Engine.Device(path)
	if !ok {
		return
	}
	snap.SetSatellites(result.Satellites)
	snap.DOP = result.DOP

	if d.shmClock != nil && path == d.shmPath {
		if err := d.PublishSHM(path, d.shmClock); err != nil {
			log.WithError(err).WithField("device", path).Debug("daemon: shm publish failed")
		}
	}
}

// pollCAN reads raw NMEA2000 frames off a CAN bus, reassembles fast-packet
// PGNs, and decodes completed PGNFrames via the N2K driver.
func (d *Daemon) pollCAN(ctx context.Context, path string, can *device.CAN) error {
	reassembler := fastpacket.NewReassembler(driver.FastPacketPGNs)
	n2k := driver.N2K{}
	for {
		if ctx.Err() != nil {
			return nil
		}
		id, data, err := can.ReadID()
		if err != nil {
			log.WithError(err).WithField("device", path).Error("daemon: can read failed")
			d.Engine.RemoveDevice(path)
			return fmt.Errorf("daemon: can device %s: %w", path, err)
		}

		pgn := id >> 8 & 0x3FFFF
		priority := uint8(id>>26) & 0x7
		source := uint8(id)

		pgnFrame, complete := reassembler.Feed(fastpacket.Frame{
			PGN:      pgn,
			Priority: priority,
			Source:   source,
			Time:     time.Now(),
			Data:     data,
		})
		if !complete {
			continue
		}

		result, err := n2k.DecodePGN(pgnFrame)
		if err != nil {
			d.Metrics.IncDecodeErrors("NMEA2000")
			log.WithError(err).WithField("device", path).Debug("daemon: pgn decode failed")
			continue
		}
		d.Metrics.IncFramesDecoded("NMEA2000")
		d.applyResult(path, result)
	}
}

// runPPS classifies PPS edges for a device configured with pps: true. It
// runs a pps.Thread only when the device's transport implements
// pps.EdgeSource; none of the device package's transports do, so for them it
// logs a warning and returns.
func (d *Daemon) runPPS(ctx context.Context, path string) error {
	source, ok := d.devices[path].(pps.EdgeSource)
	if !ok {
		log.WithField("device", path).Warn("daemon: pps requested but device has no edge source")
		return nil
	}
	thread := &pps.Thread{
		DeviceID: path,
		Source:   source,
		Store:    d.PPS,
		LastFixtime: func() (time.Time, bool) {
			snap, ok := d.Engine.Device(path)
			if !ok {
				return time.Time{}, false
			}
			t, present := snap.Fix.Time.Get()
			if !present {
				return time.Time{}, false
			}
			sec := int64(t)
			nsec := int64((t - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec), true
		},
	}
	thread.Run(ctx)

	if mean, stddev, ok := d.PPS.JitterStats(path); ok {
		log.WithFields(log.Fields{"device": path, "mean": mean}).Debug("daemon: pps jitter mean")
		d.Metrics.SetPPSJitterSeconds(path, stddev)
	}
	return nil
}

// serveClients runs the TCP accept loop for the client reporting protocol.
func (d *Daemon) serveClients(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.Config.ListenAddr)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", d.Config.ListenAddr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daemon: accept: %w", err)
		}
		go d.serveClient(ctx, conn)
	}
}

func (d *Daemon) serveClient(ctx context.Context, conn net.Conn) {
	sub := session.NewSubscriber(conn)
	d.Engine.AddSubscriber(sub)
	d.Metrics.SetSubscribers(len(d.Engine.Subscribers()))
	defer func() {
		d.Engine.RemoveSubscriber(sub)
		d.Metrics.SetSubscribers(len(d.Engine.Subscribers()))
		_ = conn.Close()
	}()

	buf := make([]byte, 0, 256)
	read := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(read)
		if err != nil {
			return
		}
		buf = append(buf, read[:n]...)
		for {
			idx := indexByte(buf, '\n')
			if idx < 0 {
				break
			}
			line := string(buf[:idx])
			buf = buf[idx+1:]
			sub.Touch()
			reply := d.Engine.HandleLine(sub, line)
			if reply != "" {
				if err := sub.Send(reply); err != nil {
					return
				}
			}
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// serveControl runs the privileged control-socket accept loop.
func (d *Daemon) serveControl(ctx context.Context) error {
	ln, err := net.Listen("unix", d.Config.ControlSocket)
	if err != nil {
		return fmt.Errorf("daemon: control listen %s: %w", d.Config.ControlSocket, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daemon: control accept: %w", err)
		}
		go d.serveControlConn(ctx, conn)
	}
}

func (d *Daemon) serveControlConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 0, 256)
	read := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(read)
		if err != nil {
			return
		}
		buf = append(buf, read[:n]...)
		idx := indexByte(buf, '\n')
		if idx < 0 {
			continue
		}
		line := string(buf[:idx])
		buf = buf[idx+1:]
		reply := d.Engine.HandleControlLine(d, line)
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			return
		}
	}
}

// OpenDevice implements session.DeviceOpener for the control socket's '+'
// verb. It opens the transport and records it for the '!' verb; no poll loop
// is started for it, so no frames are read from a device added this way.
func (d *Daemon) OpenDevice(path string) error {
	rw, err := device.Open(context.Background(), path)
	if err != nil {
		return err
	}
	d.devices[path] = rw
	return nil
}

// WriteDevice implements session.DeviceOpener for the control socket's '!'
// verb.
func (d *Daemon) WriteDevice(path string, data []byte) error {
	rw, ok := d.devices[path]
	if !ok {
		return fmt.Errorf("daemon: device %s not open", path)
	}
	_, err := rw.Write(data)
	return err
}

// PublishSHM writes a device's current fix into its NTP SHM segment.
// applyResult calls it after each decoded result from the device the clock
// segment was opened for (the first configured device).
// The caller owns which unit w was opened against.
func (d *Daemon) PublishSHM(path string, w *shmexport.Writer) error {
	snap, ok := d.Engine.Device(path)
	if !ok {
		return fmt.Errorf("daemon: device %s not open", path)
	}
	t, ok := snap.Fix.Time.Get()
	if !ok {
		return nil
	}
	sec := int64(t)
	nsec := int64((t - float64(sec)) * float64(time.Second))
	return w.Write(shmexport.Sample{
		Real:      time.Unix(sec, nsec),
		Clock:     time.Now(),
		Precision: -1,
	})
}
