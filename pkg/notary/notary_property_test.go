//go:build property
// +build property

package notary_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/governanceview"
	"github.com/taple-mesh/node/pkg/notary"
	"github.com/taple-mesh/node/pkg/notaryregister"
	"github.com/taple-mesh/node/pkg/signer"
)

// TestNotaryMonotonicityAndSingleHash checks P1 and P2 over random
// sequences of admission calls against one (owner, subject) key: sn values
// accepted by the register never decrease, and every sn that is ever
// accepted keeps exactly one event hash across repeated calls.
func TestNotaryMonotonicityAndSingleHash(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted sn values are non-decreasing and hash-stable per sn", prop.ForAll(
		func(sns []int) bool {
			view := governanceview.NewStaticView()
			gov := digest.Of([]byte("g"))
			view.SetVersion(gov, 0)

			sg, err := signer.NewEd25519Signer()
			if err != nil {
				return false
			}
			engine := notary.New(view, notaryregister.NewMemStore(), sg)

			owner := signer.PublicKey([]byte{9, 9, 9})
			subject := digest.Of([]byte("subject"))

			seenHash := make(map[uint64]digest.Digest)
			var lastAcceptedSn uint64
			haveAccepted := false

			for _, raw := range sns {
				sn := uint64(raw % 64)
				if raw < 0 {
					sn = uint64(-raw % 64)
				}
				hash := digest.Of([]byte{byte(sn), byte(sn >> 8)})

				resp, admitErr := engine.Admit(context.Background(), notary.Request{
					GovID: gov, SubjectID: subject, Owner: owner,
					EventHash: hash, Sn: sn, GovVersion: 0,
				})

				if admitErr == nil {
					if haveAccepted && sn < lastAcceptedSn {
						return false // P1 violated
					}
					if existing, ok := seenHash[sn]; ok && existing != hash {
						return false // would only happen if DifferentHashForEvent should have fired
					}
					seenHash[sn] = hash
					lastAcceptedSn = sn
					haveAccepted = true
					_ = resp
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 63)),
	))

	properties.TestingRun(t)
}
