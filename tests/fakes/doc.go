// Package fakes provides test doubles for the broker's external clients.
//
// Fakes are hand written (not generated) so tests control every response
// precisely and can assert on the recorded call sequence:
//
//	fake := fakes.NewFakePAMClient().
//	    AddAccount(1, "DB01", 10, "sa").
//	    ScriptCheckout(1, 10, fakes.CheckoutResponse{RequestID: "77"}).
//	    ScriptCredential("77", fakes.CredentialResponse{Value: "pw"})
//
//	// ... run code under test ...
//	assert.Equal(t, 1, fake.CallCount(pam.OpCheckin))
package fakes
