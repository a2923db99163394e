// QEMU "virt" RISC-V machine support
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package virt provides hardware initialization, DMA region setup and
// peripheral instances for the QEMU "virt" RV64GC machine, following
// the board-package convention used throughout the TamaGo framework:
// a package-level var block of driver instances plus a
// //go:linkname-hooked Init function invoked before the Go runtime
// starts the scheduler.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64`
// as supported by the TamaGo framework for bare metal Go.
package virt

import (
	_ "unsafe"

	"github.com/usbarmory/virtio-boot/dma"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/riscv64"
	"github.com/usbarmory/virtio-boot/soc/ns16550"
	"github.com/usbarmory/virtio-boot/soc/sifive/clint"
)

// Peripheral instances.
var (
	UART0 = &ns16550.UART{
		Base: platform.UARTBase,
	}

	Timer = &clint.CLINT{
		Base: platform.CLINTBase,
		// QEMU's "virt" machine clocks the CLINT at 10 MHz.
		RTCCLK: 10000000,
	}
)

// CPU is the machine-mode core instance for hart 0.
var CPU = &riscv64.CPU{}

// RingRegion backs the virtqueue's descriptor table, available ring
// and used ring at their architecturally fixed physical address.
var RingRegion = &dma.Region{
	Start: platform.RingRegionBase,
	Size:  platform.RingRegionSize,
}

// StagingRegion backs the buffer raw sectors are streamed into before
// ELF parsing, at its fixed physical address.
var StagingRegion = &dma.Region{
	Start: platform.StagingBufferBase,
	Size:  platform.StagingBufferSize,
}

// Init performs pre-runtime hardware bring-up: CPU trap vector
// installation, peripheral register computation and DMA region
// reservation. It is invoked by the TamaGo runtime before any
// goroutine other than the main one runs.
//
//go:linkname Init runtime/goos.Hwinit1
func Init() {
	CPU.Init()

	UART0.Init()

	RingRegion.Init()
	StagingRegion.Init()
}
