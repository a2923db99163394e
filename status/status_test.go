// https://github.com/usbarmory/virtio-boot
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package status

import "testing"

func TestErrorFormatting(t *testing.T) {
	err := New("virtio", DeviceNotFound)

	want := "[virtio] device not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorFormattingWithContext(t *testing.T) {
	err := Newf("loader", InvalidFormat, "unexpected header size")

	want := "[loader] invalid ELF format: unexpected header size"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIs(t *testing.T) {
	var err error = New("virtqueue", QueueFull)

	if !Is(err, QueueFull) {
		t.Error("Is() = false, want true")
	}

	if Is(err, QueueEmpty) {
		t.Error("Is() = true, want false")
	}
}

func TestIsNonStatusError(t *testing.T) {
	err := errString("plain error")

	if Is(err, Timeout) {
		t.Error("Is() = true for a non-status error, want false")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestCodeStringUnknown(t *testing.T) {
	c := Code(9999)

	got := c.String()
	want := "unknown error 9999"

	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCodeStringKnown(t *testing.T) {
	if InvalidFormat.String() != "invalid ELF format" {
		t.Errorf("String() = %q, want %q", InvalidFormat.String(), "invalid ELF format")
	}
}
