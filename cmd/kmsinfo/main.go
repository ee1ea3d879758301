//go:build linux

// main.go - kmsinfo: dump display resources and pipeline plane choice

/*
(c) 2025 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/kmsplay
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/mode"
)

const (
	fourccNV12 = uint32('N') | uint32('V')<<8 | uint32('1')<<16 | uint32('2')<<24
	fourccARGB = uint32('A') | uint32('R')<<8 | uint32('2')<<16 | uint32('4')<<24
)

func fourccString(f uint32) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

func main() {
	card := flag.Int("card", 0, "DRM card number")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kmsinfo [-card n]\n\nPrints connectors, modes and planes of a DRM device,\nmarking the planes a video/overlay pipeline would pick.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	file, err := drm.OpenCard(*card)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open card %d: %v\n", *card, err)
		os.Exit(1)
	}
	defer file.Close()

	if err := mode.SetClientCap(file, mode.ClientCapUniversalPlanes, 1); err != nil {
		fmt.Fprintf(os.Stderr, "error: universal planes unavailable: %v\n", err)
		os.Exit(1)
	}
	if err := mode.SetClientCap(file, mode.ClientCapAtomic, 1); err != nil {
		fmt.Fprintf(os.Stderr, "warning: atomic modesetting unavailable: %v\n", err)
	}

	res, err := mode.GetResources(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot read resources: %v\n", err)
		os.Exit(1)
	}

	for _, id := range res.Connectors {
		conn, err := mode.GetConnector(file, id)
		if err != nil {
			fmt.Printf("connector %d: %v\n", id, err)
			continue
		}
		state := "disconnected"
		if conn.Connection == mode.Connected {
			state = "connected"
		}
		fmt.Printf("connector %d: %s, %d modes\n", conn.ID, state, len(conn.Modes))
		for _, m := range conn.Modes {
			il := ""
			if m.Flags&(1<<4) != 0 {
				il = " interlaced"
			}
			fmt.Printf("  %dx%d@%d%s\n", m.Hdisplay, m.Vdisplay, m.Vrefresh, il)
		}
	}

	planeRes, err := mode.GetPlaneResources(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot read planes: %v\n", err)
		os.Exit(1)
	}
	videoDone, osdDone := false, false
	for _, id := range planeRes.Planes {
		p, err := mode.GetPlane(file, id)
		if err != nil {
			fmt.Printf("plane %d: %v\n", id, err)
			continue
		}
		nv12, argb := false, false
		fmt.Printf("plane %d: crtcs 0x%x, formats", p.ID, p.PossibleCrtcs)
		for _, f := range p.FormatTypes {
			fmt.Printf(" %s", fourccString(f))
			if f == fourccNV12 {
				nv12 = true
			}
			if f == fourccARGB {
				argb = true
			}
		}
		switch {
		case nv12 && !videoDone:
			fmt.Print("  <- video")
			videoDone = true
		case argb && !osdDone:
			fmt.Print("  <- overlay")
			osdDone = true
		}
		fmt.Println()

		props, err := mode.GetProperties(file, id, mode.ObjectPlane)
		if err != nil {
			continue
		}
		for i, propID := range props.Props {
			prop, err := mode.GetProperty(file, propID)
			if err != nil {
				continue
			}
			if prop.Name == "type" || prop.Name == "zpos" {
				mut := ""
				if prop.Flags&mode.PropImmutable != 0 {
					mut = " (immutable)"
				}
				fmt.Printf("  %s = %d%s\n", prop.Name, props.PropValues[i], mut)
			}
		}
	}
}
