package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// CensusesEndpoint is the endpoint for creating or deleting a census
	CensusesEndpoint = "/censuses"
	// CensusParticipantsEndpoint is the endpoint for batch participant insertion
	CensusParticipantsEndpoint = "/censuses/participants"
	// CensusRegisterEndpoint registers a single commitment and returns its proof
	CensusRegisterEndpoint = "/censuses/register"
	// CensusRootEndpoint is the endpoint to get the census Merkle root
	CensusRootEndpoint = "/censuses/root"
	// CensusSizeEndpoint is the endpoint to get the census size
	CensusSizeEndpoint = "/censuses/size"
	// CensusProofEndpoint is the endpoint to get a membership proof
	CensusProofEndpoint = "/censuses/proof"
	// ProcessesEndpoint is the endpoint for creating or listing voting processes
	ProcessesEndpoint = "/processes"
	// ProcessEndpoint is the endpoint to get the process info
	ProcessURLParam = "processId"
	ProcessEndpoint = "/processes/{" + ProcessURLParam + "}"
	// ProcessDigestEndpoint returns the published ledger digest of a process
	ProcessDigestEndpoint = ProcessEndpoint + "/digest"
	// ProcessIntegrityEndpoint replays the ledger and checks it against the digest
	ProcessIntegrityEndpoint = ProcessEndpoint + "/integrity"
	// VotesEndpoint is the endpoint for submitting a vote synchronously
	VotesEndpoint = "/votes"
	// VotesAsyncEndpoint queues a vote for background processing
	VotesAsyncEndpoint = "/votes/async"
	// VoteStatusEndpoint reports whether a nullifier can still vote
	NullifierURLParam  = "nullifier"
	VoteStatusEndpoint = "/votes/{" + ProcessURLParam + "}/{" + NullifierURLParam + "}"
	// NullifierProofEndpoint returns an inclusion proof against the digest
	NullifierProofEndpoint = "/votes/{" + ProcessURLParam + "}/{" + NullifierURLParam + "}/proof"
)
