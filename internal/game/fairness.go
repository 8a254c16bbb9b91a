package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

const (
	MIN_MULTIPLIER = 1.00
	MAX_MULTIPLIER = 1000000.00
)

// Commit is the published half of the commit-reveal scheme: the hash goes
// out before betting opens, the seed stays secret until the round crashes.
type Commit struct {
	ServerSeed     string
	ServerSeedHash string
}

// NewCommit generates a fresh server seed and its SHA256 commitment.
func NewCommit() Commit {
	seed := GenerateSeed()
	return Commit{
		ServerSeed:     seed,
		ServerSeedHash: HashCommitment(seed),
	}
}

// ComputeCrashPoint derives the round's crash multiplier from the revealed
// seed material. It is a pure function of its inputs so any third party can
// recompute it: HMAC-SHA256(serverSeed, clientSeed|roundID), first 64 bits
// mapped to [0,1), then through an inverse-CDF with the given house edge.
// A draw below houseEdge is an instant crash at 1.00x.
func ComputeCrashPoint(serverSeed, clientSeed, roundID string, houseEdge float64) float64 {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(clientSeed + "|" + roundID))
	hashHex := hex.EncodeToString(h.Sum(nil))

	i := new(big.Int)
	i.SetString(hashHex[:16], 16)

	const maxUint64F = 18446744073709551616.0
	r := float64(i.Uint64()) / maxUint64F

	if r < houseEdge {
		return MIN_MULTIPLIER
	}

	// Inverse-CDF of the crash distribution: rarer draws map to higher
	// multipliers, scaled down by the house edge.
	crashValue := (1.0 - houseEdge) / (1.0 - r)

	// Truncate to 2 decimal places
	finalMultiplier := float64(int(crashValue*100)) / 100.0

	if finalMultiplier < MIN_MULTIPLIER {
		return MIN_MULTIPLIER
	}
	if finalMultiplier > MAX_MULTIPLIER {
		return MAX_MULTIPLIER
	}

	return finalMultiplier
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	h := sha256.New()
	h.Write([]byte(seed))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySeed checks that a revealed server seed matches its published commitment.
func VerifySeed(serverSeed, serverSeedHash string) bool {
	return HashCommitment(serverSeed) == serverSeedHash
}

// VerifyRound lets players re-derive a settled round's crash point from the
// revealed seed material and compare it to the claimed value.
func VerifyRound(serverSeed, clientSeed, roundID string, houseEdge, claimedCrashPoint float64) bool {
	calculated := ComputeCrashPoint(serverSeed, clientSeed, roundID, houseEdge)
	diff := calculated - claimedCrashPoint
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}
