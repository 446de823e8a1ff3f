package bookingflow

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"dontforget/internal/domain"
	"dontforget/internal/events"
	"dontforget/internal/metrics"
	"dontforget/internal/models"
	"dontforget/internal/payments"
	"dontforget/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	msgWrongStep     = "This action is not available right now."
	msgHandOffFailed = "PayPal payment failed. Please try again."
)

// Deps are the collaborators of a flow. Store is the guest's session
// scope; a memory store is used when it is nil.
type Deps struct {
	Backend  domain.BookingBackend
	Resolver Resolver
	Payments *payments.Registry
	Store    domain.Store
	Events   domain.EventPublisher
	Logger   *zerolog.Logger
}

// Flow is one booking cycle: select, then optionally payment, then confirm.
// Mutating calls never overlap; a call made while another is running
// returns ErrBusy. View may be called at any time.
type Flow struct {
	op   sync.Mutex
	busy atomic.Bool
	view atomic.Pointer[View]

	cfg       Config
	api       domain.BookingBackend
	resolver  Resolver
	registry  *payments.Registry
	store     domain.Store
	events    domain.EventPublisher
	committer *Committer
	resumer   *Resumer
	logger    *zerolog.Logger
	now       func() time.Time
	newToken  func() string

	step     Step
	res      *Resolution
	draft    models.BookingDraft
	booked   map[string]bool
	checking bool
	errMsg   string

	adapters map[models.PaymentMethod]domain.PaymentAdapter
	ready    bool
	card     string
	paid     *charge

	booking       *models.Booking
	redirectURL   string
	redirectDelay time.Duration
}

// charge is a successful payment that has not become a booking yet. It only
// covers the package and amount it was taken for.
type charge struct {
	ref       models.PaymentReference
	packageID models.ID
	amount    decimal.Decimal
}

func (c *charge) covers(packageID models.ID, amount decimal.Decimal) bool {
	return c.packageID == packageID && c.amount.Equal(amount)
}

func New(cfg Config, deps Deps) *Flow {
	logger := nopIfNil(deps.Logger)
	store := deps.Store
	if store == nil {
		store = repository.NewMemoryStore(0)
	}
	committer := NewCommitter(deps.Backend, deps.Events, logger)

	res := &Resolution{Branding: models.Branding{Color: models.DefaultBrandColor}}
	if cfg.AuthContext == Guest {
		res.OwnerName = models.AnonymousOwnerName
	}

	f := &Flow{
		cfg:       cfg,
		api:       deps.Backend,
		resolver:  deps.Resolver,
		registry:  deps.Payments,
		store:     store,
		events:    deps.Events,
		committer: committer,
		resumer:   NewResumer(deps.Backend, committer, deps.Events, logger),
		logger:    logger,
		now:       time.Now,
		newToken:  newMeetingToken,
		step:      StepSelect,
		res:       res,
		booked:    map[string]bool{},
		adapters:  map[models.PaymentMethod]domain.PaymentAdapter{},
	}
	f.draft = models.BookingDraft{ID: uuid.NewString(), Date: f.today()}
	f.publish()
	return f
}

func (f *Flow) today() string {
	return f.now().UTC().Format(models.DateLayout)
}

func (f *Flow) lock() error {
	if !f.op.TryLock() {
		return ErrBusy
	}
	f.busy.Store(true)
	return nil
}

func (f *Flow) unlock() {
	f.publish()
	f.busy.Store(false)
	f.op.Unlock()
}

// View returns the current renderable state.
func (f *Flow) View() View {
	v := *f.view.Load()
	v.Busy = f.busy.Load()
	return v
}

// Load runs on a page load: it first finishes any pending PayPal hand-off,
// then resolves the link and fetches availability for the current date.
func (f *Flow) Load(ctx context.Context, query url.Values) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	var resumed *ResumeResult
	if f.cfg.AuthContext == Guest {
		resumed = f.resumer.Resume(ctx, f.store, query)
	}

	res, err := f.resolver.Resolve(ctx, query)
	if err != nil {
		return err
	}
	f.res = res
	if res.PackagePreSelected {
		f.draft.PackageID = res.PreselectedPackage
	}
	f.draft.Method = f.defaultMethod()

	if resumed != nil && resumed.Attempted {
		if resumed.Err != nil {
			f.step = StepSelect
			f.errMsg = resumed.Err.Message
		} else {
			f.restore(resumed.Payload)
			f.booking = resumed.Booking
			f.step = StepConfirm
			f.scheduleRedirect()
		}
	}

	f.refreshAvailability(ctx)
	return nil
}

// SetDate changes the booking date, clears the chosen slot and refetches
// booked slots.
func (f *Flow) SetDate(ctx context.Context, date string) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if err := f.expectStep(StepSelect); err != nil {
		return err
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return f.fail(flowError(ErrValidation, msgDateInvalid, err))
	}

	f.draft.Date = date
	f.draft.Slot = ""
	f.draft.MeetingLink = ""
	f.refreshAvailability(ctx)
	return nil
}

func (f *Flow) SelectSlot(slot string) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if err := f.expectStep(StepSelect); err != nil {
		return err
	}
	if !f.inGrid(slot) {
		return f.fail(flowError(ErrValidation, msgSlotUnknown, nil))
	}
	if f.booked[slot] {
		return f.fail(flowError(ErrSlotBooked, msgSlotBooked, nil))
	}

	f.draft.Slot = slot
	f.draft.MeetingLink = MeetingLink(f.draft.Date, slot, f.newToken())
	return nil
}

func (f *Flow) UpdateGuest(guest models.GuestDetails) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if err := f.expectStep(StepSelect); err != nil {
		return err
	}
	f.draft.Guest = guest
	return nil
}

// SelectPackage chooses one of the offered packages. An empty id clears the
// selection.
func (f *Flow) SelectPackage(id models.ID) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if err := f.expectStep(StepSelect); err != nil {
		return err
	}
	if id.Empty() {
		f.draft.PackageID = ""
		return nil
	}
	if f.findPackage(id) == nil {
		return f.fail(flowError(ErrValidation, f.cfg.messages().selectPackage, nil))
	}
	f.draft.PackageID = id
	return nil
}

// SetPaymentOptions records the guest's pay-now choice and provider. In the
// payment step a provider change loads the new provider.
func (f *Flow) SetPaymentOptions(ctx context.Context, payNow bool, method models.PaymentMethod) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if f.step == StepConfirm {
		return f.expectStep(StepSelect)
	}
	if method != "" && !f.offers(method) {
		return f.fail(flowError(ErrValidation, msgMethodUnsupported, nil))
	}

	if f.step == StepSelect {
		f.draft.PayNow = payNow
		if method != "" {
			f.draft.Method = method
		}
		return nil
	}

	if method == "" || method == f.draft.Method {
		return nil
	}
	f.detachCard()
	f.draft.Method = method
	return f.loadAdapter(ctx)
}

// AttachCard mounts the guest's card element on the current provider.
func (f *Flow) AttachCard(ref string) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if err := f.expectStep(StepPayment); err != nil {
		return err
	}
	adapter := f.adapters[f.draft.Method]
	if adapter == nil || !f.ready {
		msg := f.errMsg
		if msg == "" {
			msg = msgPaymentLoadFailed
		}
		return f.fail(flowError(ErrPaymentSetup, msg, nil))
	}

	if err := adapter.Mount(ref); err != nil {
		if errors.Is(err, payments.ErrElementMounted) {
			return f.fail(flowError(ErrPaymentSetup, msgCardInUse, err))
		}
		return f.fail(flowError(ErrPaymentSetup, paymentMessage(err, msgPaymentLoadFailed), err))
	}
	f.card = ref
	f.errMsg = ""
	return nil
}

// Submit advances the flow: from select it either books directly or moves
// to payment; from payment it pays and books.
func (f *Flow) Submit(ctx context.Context) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if f.step == StepConfirm {
		return f.expectStep(StepSelect)
	}
	if f.res.Banner != "" {
		return f.fail(flowError(ErrLinkInvalid, f.res.Banner, nil))
	}
	if err := f.validate(); err != nil {
		return f.fail(err)
	}

	if f.step == StepPayment {
		return f.pay(ctx)
	}

	if f.needsPayment() {
		f.step = StepPayment
		f.errMsg = ""
		return f.loadAdapter(ctx)
	}
	return f.commit(ctx, nil)
}

// Back leaves the payment step. The provider stays loaded.
func (f *Flow) Back() error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	if err := f.expectStep(StepPayment); err != nil {
		return err
	}
	f.detachCard()
	f.step = StepSelect
	f.errMsg = ""
	f.redirectURL = ""
	return nil
}

// Reset starts a new booking cycle. The date and a link's fixed package are
// kept.
func (f *Flow) Reset() error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.unlock()

	for _, a := range f.adapters {
		a.Unmount()
	}
	f.adapters = map[models.PaymentMethod]domain.PaymentAdapter{}
	f.ready = false
	f.card = ""
	f.paid = nil

	packageID := models.ID("")
	if f.res.PackagePreSelected {
		packageID = f.draft.PackageID
	}
	f.draft = models.BookingDraft{
		ID:        uuid.NewString(),
		Date:      f.draft.Date,
		PackageID: packageID,
		Method:    f.defaultMethod(),
	}
	f.step = StepSelect
	f.errMsg = ""
	f.booking = nil
	f.redirectURL = ""
	f.redirectDelay = 0
	return nil
}

func (f *Flow) expectStep(step Step) error {
	if f.step != step {
		return flowError(ErrWrongStep, msgWrongStep, nil)
	}
	return nil
}

func (f *Flow) fail(err *Error) error {
	f.errMsg = err.Message
	return err
}

func (f *Flow) inGrid(slot string) bool {
	for _, s := range f.cfg.SlotGrid() {
		if s == slot {
			return true
		}
	}
	return false
}

func (f *Flow) findPackage(id models.ID) *models.Package {
	for i := range f.res.Packages {
		if f.res.Packages[i].ID == id {
			return &f.res.Packages[i]
		}
	}
	return nil
}

func (f *Flow) selectedPackage() *models.Package {
	if f.draft.PackageID.Empty() {
		return nil
	}
	return f.findPackage(f.draft.PackageID)
}

// defaultMethod prefers Stripe. It is empty when the link carries no
// provider key.
func (f *Flow) defaultMethod() models.PaymentMethod {
	switch {
	case f.res.Link.HasStripe():
		return models.MethodStripe
	case f.res.Link.HasPayPal():
		return models.MethodPayPal
	default:
		return ""
	}
}

// offers reports whether method is registered and configured on the link.
func (f *Flow) offers(method models.PaymentMethod) bool {
	if f.registry == nil || !f.registry.Supports(method) {
		return false
	}
	switch method {
	case models.MethodStripe:
		return f.res.Link.HasStripe()
	case models.MethodPayPal:
		return f.res.Link.HasPayPal()
	default:
		return true
	}
}

func (f *Flow) offeredMethods() []models.PaymentMethod {
	var methods []models.PaymentMethod
	for _, m := range f.registry.Methods() {
		if f.offers(m) {
			methods = append(methods, m)
		}
	}
	return methods
}

// validate applies the intake checks in order and returns the first
// failure.
func (f *Flow) validate() *Error {
	msgs := f.cfg.messages()
	if f.draft.PackageID.Empty() {
		return flowError(ErrValidation, msgs.selectPackage, nil)
	}
	if !f.draft.Guest.Complete() || f.draft.Slot == "" {
		return flowError(ErrValidation, msgFillRequired, nil)
	}
	if f.cfg.AuthContext == Owner && !validEmail(f.draft.Guest.Email) {
		return flowError(ErrValidation, msgEmailInvalid, nil)
	}
	if f.res.OwnerID.Empty() {
		return flowError(ErrValidation, msgs.missingOwner, nil)
	}
	if f.res.Link != nil && f.res.Link.IsFull {
		return flowError(ErrValidation, msgLinkFull, nil)
	}
	return nil
}

func (f *Flow) needsPayment() bool {
	if f.cfg.PaymentPolicy == PaymentDisabled {
		return false
	}
	if !f.selectedPackage().Priced() {
		return false
	}
	if f.cfg.PaymentPolicy == PaymentRequired {
		return true
	}
	return f.res.RequirePayment || f.draft.PayNow
}

func (f *Flow) refreshAvailability(ctx context.Context) {
	owner := f.res.OwnerID
	if owner.Empty() || f.draft.Date == "" {
		f.booked = map[string]bool{}
		return
	}

	f.checking = true
	f.publish()
	slots, err := f.api.BookedSlots(ctx, owner, f.draft.Date)
	f.checking = false
	if err != nil {
		f.logger.Warn().Err(err).
			Str("user_id", owner.String()).
			Str("date", f.draft.Date).
			Msg("Error fetching availability")
		f.booked = map[string]bool{}
		return
	}

	booked := make(map[string]bool, len(slots))
	for _, s := range slots {
		booked[s] = true
	}
	f.booked = booked
}

func (f *Flow) loadAdapter(ctx context.Context) error {
	f.ready = false
	if f.registry == nil {
		return f.fail(flowError(ErrPaymentSetup, msgMethodUnsupported, nil))
	}
	if f.draft.Method == "" {
		f.draft.Method = f.defaultMethod()
	}
	if f.draft.Method == "" || !f.offers(f.draft.Method) {
		return f.fail(flowError(ErrPaymentSetup, msgPaymentUnavailable, payments.ErrNotConfigured))
	}

	adapter, ok := f.adapters[f.draft.Method]
	if !ok {
		a, err := f.registry.New(f.draft.Method, f.res.Link)
		if err != nil {
			return f.fail(flowError(ErrPaymentSetup, msgMethodUnsupported, err))
		}
		adapter = a
		f.adapters[f.draft.Method] = adapter
	}

	if err := adapter.Load(ctx); err != nil {
		f.logger.Error().Err(err).Str("method", string(f.draft.Method)).Msg("Error loading payment provider")
		return f.fail(flowError(ErrPaymentSetup, paymentMessage(err, msgPaymentLoadFailed), err))
	}
	f.ready = true
	return nil
}

func (f *Flow) detachCard() {
	if a := f.adapters[f.draft.Method]; a != nil {
		a.Unmount()
	}
	f.card = ""
}

func (f *Flow) pay(ctx context.Context) error {
	if !f.ready {
		if err := f.loadAdapter(ctx); err != nil {
			return err
		}
	}
	adapter := f.adapters[f.draft.Method]

	amount := f.selectedPackage().Amount()
	if !amount.IsPositive() {
		return f.fail(flowError(ErrValidation, msgInvalidPrice, nil))
	}
	f.errMsg = ""

	// The guest already paid for this package; only the booking is missing.
	if f.paid != nil {
		if f.paid.covers(f.draft.PackageID, amount) {
			return f.commit(ctx, &f.paid.ref)
		}
		f.logger.Warn().
			Str("reference", f.paid.ref.Reference).
			Str("paid_package_id", f.paid.packageID.String()).
			Str("package_id", f.draft.PackageID.String()).
			Msg("Package changed after payment")
		f.paid = nil
	}

	method := f.draft.Method
	result, err := adapter.Confirm(ctx, models.PaymentRequest{
		UserID:    f.res.OwnerID,
		PackageID: f.draft.PackageID,
		Amount:    amount,
		Guest:     f.draft.Guest,
		LinkSlug:  f.linkSlug(),
		ReturnURL: f.returnURL(),
		CancelURL: f.returnURL(),
	})
	if err != nil {
		metrics.IncPayment(string(method), "failed")
		f.publishPayment(events.EventPaymentFailed, "", err.Error())
		return f.fail(flowError(ErrPaymentFailed, paymentMessage(err, msgPaymentFailed), err))
	}

	if result.Outcome == models.OutcomeRedirect {
		if err := SaveTask(ctx, f.store, result.Reference, f.payload(), f.now()); err != nil {
			f.logger.Error().Err(err).Str("order_id", result.Reference).Msg("Error saving pending PayPal order")
			metrics.IncPayment(string(method), "failed")
			return f.fail(flowError(ErrPaymentFailed, msgHandOffFailed, err))
		}
		metrics.IncPayment(string(method), "redirect")
		f.publishPayment(events.EventPaymentRedirect, result.Reference, "")
		f.redirectURL = result.RedirectURL
		f.redirectDelay = 0
		return nil
	}

	metrics.IncPayment(string(method), "succeeded")
	f.paid = &charge{
		ref:       models.PaymentReference{Provider: method, Reference: result.Reference},
		packageID: f.draft.PackageID,
		amount:    amount,
	}
	return f.commit(ctx, &f.paid.ref)
}

func (f *Flow) commit(ctx context.Context, ref *models.PaymentReference) error {
	booking, err := f.committer.Commit(ctx, f.payload(), ref, f.draft.ID)
	if err != nil {
		var flowErr *Error
		if errors.As(err, &flowErr) {
			return f.fail(flowErr)
		}
		return f.fail(flowError(ErrBookingCreation, msgBookingFailed, err))
	}

	f.booking = booking
	f.paid = nil
	f.detachCard()
	f.step = StepConfirm
	f.errMsg = ""
	f.scheduleRedirect()
	return nil
}

func (f *Flow) publishPayment(eventType, reference, reason string) {
	if f.events == nil {
		return
	}
	_ = f.events.PublishJSON(eventType, events.PaymentEventPayload{
		Provider:  string(f.draft.Method),
		UserID:    f.res.OwnerID.String(),
		Reference: reference,
		Reason:    reason,
	})
}

func (f *Flow) scheduleRedirect() {
	if f.res.Link == nil || f.res.Link.RedirectURL == "" {
		return
	}
	f.redirectURL = f.res.Link.RedirectURL
	f.redirectDelay = f.cfg.RedirectDelay
}

func (f *Flow) linkSlug() string {
	if f.res.Link == nil {
		return ""
	}
	return f.res.Link.Slug
}

// returnURL is the booking page itself, carrying the link slug so the
// guest lands on the same link after PayPal.
func (f *Flow) returnURL() string {
	slug := f.linkSlug()
	if slug == "" {
		return f.cfg.PageURL
	}
	return f.cfg.PageURL + "?" + url.Values{models.LinkQueryKey: {slug}}.Encode()
}

func (f *Flow) payload() models.BookingPayload {
	return models.BookingPayload{
		UserID:       f.res.OwnerID,
		PackageID:    f.draft.PackageID,
		GuestName:    f.draft.Guest.Name,
		GuestEmail:   f.draft.Guest.Email,
		GuestPhone:   f.draft.Guest.Phone,
		GuestComment: f.draft.Guest.Comment,
		Date:         f.draft.Date,
		TimeSlot:     f.draft.Slot,
		MeetingLink:  f.draft.MeetingLink,
		LinkSlug:     f.linkSlug(),
	}
}

func (f *Flow) restore(p models.BookingPayload) {
	f.draft.Date = p.Date
	f.draft.Slot = p.TimeSlot
	f.draft.MeetingLink = p.MeetingLink
	f.draft.PackageID = p.PackageID
	f.draft.PayNow = true
	f.draft.Method = models.MethodPayPal
	f.draft.Guest = models.GuestDetails{
		Name:    p.GuestName,
		Email:   p.GuestEmail,
		Phone:   p.GuestPhone,
		Comment: p.GuestComment,
	}
}

func (f *Flow) publish() {
	res := f.res
	v := &View{
		Step:               f.step,
		OwnerName:          res.OwnerName,
		Branding:           res.Branding,
		LinkSlug:           f.linkSlug(),
		LinkError:          res.Banner,
		RequirePayment:     res.RequirePayment,
		PaymentPolicy:      f.cfg.PaymentPolicy.String(),
		Packages:           res.Packages,
		PackagePreSelected: res.PackagePreSelected,
		Draft:              f.draft,
		CheckingSlots:      f.checking,
		CanSubmit:          res.Banner == "" && f.validate() == nil,
		NeedsPayment:       f.needsPayment(),
		PaymentReady:       f.step == StepPayment && f.ready,
		CardAttached:       f.card != "",
		Error:              f.errMsg,
		Notice:             res.Notice,
		RedirectURL:        f.redirectURL,
		RedirectAfterMS:    f.redirectDelay.Milliseconds(),
	}
	if res.Link != nil {
		v.IsFull = res.Link.IsFull
		v.StripeKey = res.Link.StripeKey
	}
	if f.cfg.PaymentPolicy != PaymentDisabled && f.registry != nil {
		v.PaymentMethods = f.offeredMethods()
	}
	if f.booking != nil {
		v.BookingID = f.booking.ID
	}

	grid := f.cfg.SlotGrid()
	v.Slots = make([]SlotView, len(grid))
	for i, s := range grid {
		v.Slots[i] = SlotView{Time: s, Booked: f.booked[s], Selected: s == f.draft.Slot}
	}
	f.view.Store(v)
}

func paymentMessage(err error, fallback string) string {
	var payErr *payments.Error
	if errors.As(err, &payErr) && payErr.Message != "" {
		return payErr.Message
	}
	return fallback
}
