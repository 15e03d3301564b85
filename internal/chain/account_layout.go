package chain

// Account-model wire layout. A pool is one program-owned record naming the
// two mints and the two token-program vault accounts that hold the
// reserves. The adapter peeks at the vault pubkeys to issue the follow-up
// read; the decoder validates everything else.
const (
	// PubkeyLen is the account address size.
	PubkeyLen = 32

	// PoolRecordLen is the serialized pool record size.
	PoolRecordLen = 131

	// PoolRecordDiscriminator tags an initialized pool record.
	PoolRecordDiscriminator = 0x01

	PoolMintAOffset     = 1
	PoolMintBOffset     = 33
	PoolVaultAOffset    = 65
	PoolVaultBOffset    = 97
	PoolDecimalsAOffset = 129
	PoolDecimalsBOffset = 130

	// TokenAccountLen is the token-program account size.
	TokenAccountLen = 165

	TokenAccountMintOffset   = 0
	TokenAccountOwnerOffset  = 32
	TokenAccountAmountOffset = 64
	TokenAccountStateOffset  = 108

	// TokenAccountStateInitialized is the state byte of a live token account.
	TokenAccountStateInitialized = 1
)
