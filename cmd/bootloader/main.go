// RISC-V virtio-blk bootloader for QEMU's "virt" machine
// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command bootloader discovers a legacy virtio-blk MMIO device,
// streams an ELF64 kernel image off it into RAM and jumps to its
// entry point with the RISC-V supervisor handoff convention. It never
// returns: the final step is an unconditional jump, and every failure
// path along the way ends in a printed diagnostic followed by a safe
// halt.
package main

import (
	"math"

	"github.com/usbarmory/virtio-boot/board/qemu/virt"
	"github.com/usbarmory/virtio-boot/boot"
	"github.com/usbarmory/virtio-boot/loader"
	"github.com/usbarmory/virtio-boot/platform"
	"github.com/usbarmory/virtio-boot/virtio"
)

const banner = "virtio-boot: RISC-V bootloader for QEMU virt"

func fatal(err error) {
	virt.UART0.WriteString("\r\n[bootloader] " + err.Error() + "\r\n")
	halt()
}

// halt never returns; it is the only path out of main() other than
// the kernel handoff itself. DefaultIdleGovernor never returns when
// given math.MaxInt64, since it falls through to the WFI/loop stub in
// riscv64.
func halt() {
	virt.CPU.DefaultIdleGovernor(math.MaxInt64)
}

func main() {
	virt.UART0.WriteString(banner + "\r\n")

	dev, err := virtio.Discover(virt.RingRegion)
	if err != nil {
		fatal(err)
		return
	}

	virt.UART0.WriteString("virtio-blk: found, capacity reported\r\n")

	ld := loader.New(dev, virt.StagingRegion)

	scratch := make([]byte, platform.SectorSize)

	_, found, err := ld.ScanForELF(scratch)
	if err != nil {
		fatal(err)
		return
	}

	if found {
		virt.UART0.WriteString("loader: ELF signature located\r\n")
	} else {
		virt.UART0.WriteString("loader: ELF signature not found, using fallback sector\r\n")
	}

	if err := ld.BulkRead(); err != nil {
		fatal(err)
		return
	}

	file, entry, err := ld.Parse()
	if err != nil {
		fatal(err)
		return
	}

	if err := ld.MaterializeSegments(file, loader.PhysicalMemory{}); err != nil {
		fatal(err)
		return
	}

	virt.UART0.WriteString("bootloader: jumping to kernel\r\n")

	boot.Handoff(entry, 0, platform.DTBAddress)
}
