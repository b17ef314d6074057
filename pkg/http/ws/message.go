package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeCreateMatch      = "create_match"
	TypeJoinMatch        = "join_match"
	TypeStartMatch       = "start_match"
	TypeSubmitAnswer     = "submit_answer"
	TypeBank             = "bank"
	TypeCastVote         = "cast_vote"
	TypeChooseOpponent   = "choose_opponent"
	TypeUseWildcard      = "use_wildcard"
	TypeAckEvent         = "ack_event"
	TypeRequestState     = "request_state"
	TypeLeaveMatch       = "leave_match"
	TypeTriggerLightning = "trigger_lightning"
	TypeTriggerExam      = "trigger_exam"

	// Server -> Client
	TypeMatchJoined       = "match_joined"
	TypePlayerJoined      = "player_joined"
	TypeMatchState        = "match_state"
	TypeTurnOrder         = "turn_order"
	TypeQuestionPrompt    = "question_prompt"
	TypeAnswerResult      = "answer_result"
	TypeBankState         = "bank_state"
	TypeRoundSummary      = "round_summary"
	TypeVoteReveal        = "vote_reveal"
	TypeCoinTossResult    = "coin_toss_result"
	TypeDuelStart         = "duel_start"
	TypeDuelResolution    = "duel_resolution"
	TypeFinalTiebreak     = "final_tiebreak"
	TypeEliminationResult = "elimination_result"
	TypeWildcardUsed      = "wildcard_used"
	TypeLightningStart    = "lightning_start"
	TypeLightningResult   = "lightning_result"
	TypeExamStart         = "exam_start"
	TypeExamQuestion      = "exam_question"
	TypeExamResult        = "exam_result"
	TypeMatchComplete     = "match_complete"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeForcedDisconnect  = "forced_disconnect"
	TypeError             = "error"
	TypePing              = "ping"
	TypePong              = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed envelope.
func NewMessage(msgType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Client Messages (incoming)

type CreateMatchPayload struct {
	MatchID    string `json:"match_id,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

type JoinMatchPayload struct {
	MatchID string `json:"match_id"`
}

type StartMatchPayload struct {
	MatchID string `json:"match_id"`
}

type SubmitAnswerPayload struct {
	MatchID    string `json:"match_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

type BankPayload struct {
	MatchID string `json:"match_id"`
}

type CastVotePayload struct {
	MatchID  string  `json:"match_id"`
	TargetID *string `json:"target_id"` // null abstains
}

type ChooseOpponentPayload struct {
	MatchID    string `json:"match_id"`
	OpponentID string `json:"opponent_id"`
}

type UseWildcardPayload struct {
	MatchID  string `json:"match_id"`
	Kind     string `json:"kind"`
	TargetID string `json:"target_id,omitempty"`
}

type AckEventPayload struct {
	MatchID string `json:"match_id"`
	EventID string `json:"event_id"`
}

type RequestStatePayload struct {
	MatchID string `json:"match_id"`
}

type TriggerLightningPayload struct {
	MatchID  string `json:"match_id"`
	TargetID string `json:"target_id"`
}

type TriggerExamPayload struct {
	MatchID string `json:"match_id"`
}

type LeaveMatchPayload struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason,omitempty"`
}

// Server Messages (outgoing)

type Player struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Eliminated  bool   `json:"eliminated"`
	Winner      bool   `json:"winner,omitempty"`
}

type MatchJoinedPayload struct {
	MatchID    string   `json:"match_id"`
	HostID     string   `json:"host_id"`
	Difficulty string   `json:"difficulty"`
	Locale     string   `json:"locale"`
	Players    []Player `json:"players"`
}

type PlayerJoinedPayload struct {
	MatchID string `json:"match_id"`
	Player  Player `json:"player"`
}

type MatchStatePayload struct {
	MatchID         string           `json:"match_id"`
	HostID          string           `json:"host_id"`
	Phase           string           `json:"phase"`
	Round           int              `json:"round"`
	Players         []Player         `json:"players"`
	CurrentTurnID   string           `json:"current_turn_id,omitempty"`
	CurrentChain    int              `json:"current_chain"`
	BankedPoints    int              `json:"banked_points"`
	QuestionsLeft   int              `json:"questions_left"`
	WeakestRivalID  string           `json:"weakest_rival_id,omitempty"`
	DuelOpponentID  string           `json:"duel_opponent_id,omitempty"`
	ActiveEventID   string           `json:"active_event_id,omitempty"`
	ActiveEventKind string           `json:"active_event_kind,omitempty"`
	Finished        bool             `json:"finished"`
	WinnerID        string           `json:"winner_id,omitempty"`
	Votes           []VoteEntry      `json:"votes,omitempty"`
	Question        *QuestionPayload `json:"question,omitempty"`
}

type TurnOrderPayload struct {
	MatchID         string   `json:"match_id"`
	OrderedAliveIDs []string `json:"ordered_alive_ids"`
	CurrentTurnID   string   `json:"current_turn_id"`
	ServerTicks     int64    `json:"server_ticks"`
}

type QuestionPayload struct {
	ID             string   `json:"id"`
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
	TimeLimitMs    int64    `json:"time_limit_ms"`
	AssignedUserID string   `json:"assigned_user_id,omitempty"`
}

type QuestionPromptPayload struct {
	MatchID  string          `json:"match_id"`
	Round    int             `json:"round"`
	Phase    string          `json:"phase"`
	Question QuestionPayload `json:"question"`
}

type AnswerResultPayload struct {
	MatchID        string `json:"match_id"`
	UserID         string `json:"user_id"`
	QuestionID     string `json:"question_id"`
	IsCorrect      bool   `json:"is_correct"`
	ChainIncrement int    `json:"chain_increment"`
	CurrentChain   int    `json:"current_chain"`
	BankedPoints   int    `json:"banked_points"`
}

type BankStatePayload struct {
	MatchID      string `json:"match_id"`
	UserID       string `json:"user_id"`
	CurrentChain int    `json:"current_chain"`
	BankedPoints int    `json:"banked_points"`
}

type PlayerRoundStats struct {
	UserID  string `json:"user_id"`
	Correct int    `json:"correct"`
	Wrong   int    `json:"wrong"`
	Banked  int    `json:"banked"`
}

type RoundSummaryPayload struct {
	MatchID     string             `json:"match_id"`
	RoundNumber int                `json:"round_number"`
	Players     []PlayerRoundStats `json:"players"`
}

type VoteEntry struct {
	VoterID  string  `json:"voter_id"`
	TargetID *string `json:"target_id"`
}

type VoteRevealPayload struct {
	MatchID string      `json:"match_id"`
	Entries []VoteEntry `json:"entries"`
}

type CoinTossResultPayload struct {
	MatchID          string   `json:"match_id"`
	Result           string   `json:"result"`
	Candidates       []string `json:"candidates"`
	WeakestRivalID   string   `json:"weakest_rival_id"`
	ShouldEnableDuel bool     `json:"should_enable_duel"`
	Reveal           *string  `json:"reveal,omitempty"`
}

// FinalTiebreakPayload explains how a level final was decided. Result is
// set only when Decider is a coin toss.
type FinalTiebreakPayload struct {
	MatchID   string   `json:"match_id"`
	Finalists []string `json:"finalists"`
	Decider   string   `json:"decider"`
	Result    string   `json:"result,omitempty"`
	WinnerID  string   `json:"winner_id"`
	LoserID   string   `json:"loser_id"`
}

type DuelStartInfoPayload struct {
	MatchID        string   `json:"match_id"`
	WeakestRivalID string   `json:"weakest_rival_id"`
	VoterIDs       []string `json:"voter_ids"`
	OpponentID     string   `json:"opponent_id,omitempty"`
	Final          bool     `json:"final,omitempty"`
}

type DuelResolutionPayload struct {
	MatchID          string `json:"match_id"`
	Outcome          string `json:"outcome"`
	EliminatedUserID string `json:"eliminated_user_id"`
}

type EliminationResultPayload struct {
	MatchID          string `json:"match_id"`
	EliminatedUserID string `json:"eliminated_user_id"`
	RemainingPlayers int    `json:"remaining_players"`
}

type WildcardUsedPayload struct {
	MatchID  string `json:"match_id"`
	UserID   string `json:"user_id"`
	Kind     string `json:"kind"`
	TargetID string `json:"target_id,omitempty"`
}

type LightningStartPayload struct {
	MatchID       string `json:"match_id"`
	EventID       string `json:"event_id"`
	TargetID      string `json:"target_id"`
	Questions     int    `json:"questions"`
	Threshold     int    `json:"threshold"`
	TimeBudgetMs  int64  `json:"time_budget_ms"`
	DeadlineAtUtc string `json:"deadline_at_utc"`
}

type LightningResultPayload struct {
	MatchID      string `json:"match_id"`
	EventID      string `json:"event_id"`
	TargetID     string `json:"target_id"`
	Correct      int    `json:"correct"`
	Success      bool   `json:"success"`
	BankedPoints int    `json:"banked_points"`
}

type ExamStartPayload struct {
	MatchID       string   `json:"match_id"`
	EventID       string   `json:"event_id"`
	DeadlineAtUtc string   `json:"deadline_at_utc"`
	Participants  []string `json:"participants"`
}

type ExamQuestionPayload struct {
	MatchID  string          `json:"match_id"`
	EventID  string          `json:"event_id"`
	Question QuestionPayload `json:"question"`
}

type ExamOutcome struct {
	UserID   string `json:"user_id"`
	Answered bool   `json:"answered"`
	Correct  bool   `json:"correct"`
}

type ExamResultPayload struct {
	MatchID      string        `json:"match_id"`
	EventID      string        `json:"event_id"`
	TimedOut     bool          `json:"timed_out"`
	Outcomes     []ExamOutcome `json:"outcomes"`
	BankedPoints int           `json:"banked_points"`
}

type MatchCompletePayload struct {
	MatchID      string   `json:"match_id"`
	WinnerID     string   `json:"winner_id"`
	BankedPoints int      `json:"banked_points"`
	Rounds       int      `json:"rounds"`
	Players      []Player `json:"players"`
}

type LeaderboardUpdatePayload struct {
	Window  string             `json:"window"`
	Top     []LeaderboardEntry `json:"top"`
	MatchID string             `json:"match_id"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Wins        int    `json:"wins"`
	Games       int    `json:"games"`
}

type ForcedDisconnectPayload struct {
	Code             string  `json:"code"`
	SanctionEndAtUtc *string `json:"sanction_end_at_utc,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
