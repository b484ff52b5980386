// Package secure keeps cached secret values out of plain process memory.
//
// Values are sealed in memguard enclaves (XSalsa20Poly1305, mlock'd key
// material) and only decrypted for the duration of a read:
//
//	v := secure.NewValue("s3cr3t")
//	defer v.Destroy()
//
//	plain, err := v.Reveal()
//
// This does not protect against an attacker with root access to the running
// process; it keeps secrets out of core dumps and swap.
package secure
