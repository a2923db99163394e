// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bits

// Get16 returns whether a specific bit position is set at the pointed
// value. Added alongside Get/Get64 to cover the 16-bit descriptor
// flags and ring indices used by the virtqueue.
func Get16(addr *uint16, pos int) bool {
	return (addr != nil) && (*addr>>uint(pos))&1 == 1
}

// Set16 modifies the pointed value by setting an individual bit at the
// position argument.
func Set16(addr *uint16, pos int) {
	*addr |= 1 << uint(pos)
}

// Clear16 modifies the pointed value by clearing an individual bit at
// the position argument.
func Clear16(addr *uint16, pos int) {
	*addr &= ^(uint16(1) << uint(pos))
}
